package interfaces

import (
	"context"
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

type AnalysisCacheRepository interface {
	// GetByEmailID returns nil, nil when no entry exists. Expiry is evaluated
	// by the cache service, not here.
	GetByEmailID(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error)
	// Upsert replaces the entry for the email id (at most one per key).
	Upsert(ctx context.Context, entry *models.AnalysisCacheEntry) error
	Delete(ctx context.Context, emailID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
