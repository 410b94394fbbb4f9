package interfaces

import (
	"context"
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

type WebhookSubscriptionRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.WebhookSubscription, error)
	// GetByChannelID resolves a provider notification back to its account.
	GetByChannelID(ctx context.Context, channelID string) (*models.WebhookSubscription, error)
	// Save upserts the single subscription row per account.
	Save(ctx context.Context, sub *models.WebhookSubscription) error
	DeleteByAccountID(ctx context.Context, accountID string) error
	ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.WebhookSubscription, error)
}
