package interfaces

import (
	"context"
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
)

// EmailChange is one normalized change reported by a provider. The shape is
// common across IMAP, Gmail and Graph gateways; provider-specific fields stay
// inside the gateway.
type EmailChange struct {
	ProviderMessageID string
	ThreadID          string
	Subject           string
	FromAddress       string
	FromName          string
	Snippet           string
	Read              bool
	Labels            []string
	// ProviderUpdatedAt is the provider-reported modification time; zero when
	// the provider does not report one.
	ProviderUpdatedAt time.Time
	ReceivedAt        time.Time
}

// ChangeBatch is the result of one fetch. NextCursor is opaque to callers and
// is persisted verbatim for the next pass.
type ChangeBatch struct {
	Changes    []EmailChange
	NextCursor string
}

// PushChannel is the handle of an open provider push registration.
type PushChannel struct {
	ID          string
	Resource    string
	ClientState string
	ExpiresAt   time.Time
}

// ProviderGateway is the uniform capability implemented per provider. An empty
// cursor means "from the beginning" under the provider's own semantics.
type ProviderGateway interface {
	Provider() enum.EmailProvider
	FetchChangesSince(ctx context.Context, cursor string) (*ChangeBatch, error)
	// OpenPushChannel registers a push notification channel delivering to
	// notificationURL. Returns ErrPushNotSupported when the provider cannot push.
	OpenPushChannel(ctx context.Context, notificationURL string) (*PushChannel, error)
	ClosePushChannel(ctx context.Context, channelID string) error
}

// GatewayFactory builds the gateway for one account, selected by the
// account's provider tag.
type GatewayFactory interface {
	GatewayFor(ctx context.Context, accountID string) (ProviderGateway, error)
}
