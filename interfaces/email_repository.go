package interfaces

import (
	"context"

	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

type EmailRepository interface {
	GetByID(ctx context.Context, id string) (*models.Email, error)
	GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error)
	// FindByProviderMessageID looks the message up across one user's accounts;
	// used by the read-status endpoint where only the provider message id is
	// known. Message ids are only unique per account, so the caller's user id
	// scopes the search.
	FindByProviderMessageID(ctx context.Context, userID, providerMessageID string) (*models.Email, error)
	Create(ctx context.Context, email *models.Email) error
	// UpdateMutableFields merges re-ingested metadata into an existing row;
	// only mutable columns are touched.
	UpdateMutableFields(ctx context.Context, email *models.Email) error
	SetReadFlag(ctx context.Context, id string, read bool) error
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}
