package interfaces

import (
	"context"

	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

// AnalysisResult is the opaque output of the external analysis collaborator.
type AnalysisResult struct {
	Analysis models.JSONMap
	Draft    models.JSONMap
}

// AnalysisService is the external scoring/draft generator. The computation is
// expensive; callers go through the analysis cache rather than calling this
// directly.
type AnalysisService interface {
	AnalyzeEmail(ctx context.Context, emailID string) (*AnalysisResult, error)
}

// AnalysisRequester asks for cache population for a freshly ingested message
// without blocking the ingestion pass.
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, tenantID, emailID string) error
}

// AnalysisCache memoizes analysis results per email with TTL freshness and an
// at-most-one-concurrent-computation guarantee per key.
type AnalysisCache interface {
	Get(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error)
	GetOrCompute(ctx context.Context, emailID string, compute func(ctx context.Context) (*AnalysisResult, error)) (*models.AnalysisCacheEntry, error)
	Invalidate(ctx context.Context, emailID string) error
	// SweepExpired physically deletes entries whose TTL has lapsed and returns
	// how many rows were removed.
	SweepExpired(ctx context.Context) (int64, error)
}
