package interfaces

import "context"

// ReadStatusService applies local read/unread mutations with ownership
// verification. The mutation is one-way: nothing is pushed back to the remote
// provider.
type ReadStatusService interface {
	SetReadStatus(ctx context.Context, requestingUserID, providerMessageID string, isRead bool) error
}
