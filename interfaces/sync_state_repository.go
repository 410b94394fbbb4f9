package interfaces

import (
	"context"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

type SyncStateRepository interface {
	// GetSyncState returns nil, nil when no state has been persisted yet.
	GetSyncState(ctx context.Context, accountID string, provider enum.EmailProvider) (*models.SyncState, error)
	// SaveSyncState is a last-writer-wins upsert on (accountID, provider).
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	DeleteAccountSyncStates(ctx context.Context, accountID string) error
}
