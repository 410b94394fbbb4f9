package interfaces

import (
	"context"

	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

// AccountRepository is the read-only directory of mail accounts. Rows are
// owned by the account-management layer; the sync core never writes them.
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Account, error)
	ListActiveForUser(ctx context.Context, tenantID, userID string) ([]*models.Account, error)
}
