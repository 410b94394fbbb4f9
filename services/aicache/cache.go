package aicache

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/singleflight"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

const DefaultAnalysisTTL = 24 * time.Hour

// analysisCache persists computed analysis results and collapses concurrent
// computations for the same email into a single upstream call.
type analysisCache struct {
	repository interfaces.AnalysisCacheRepository
	logger     logger.Logger
	ttl        time.Duration
	group      singleflight.Group
	nowFunc    func() time.Time
}

func NewAnalysisCache(repository interfaces.AnalysisCacheRepository, log logger.Logger, ttl time.Duration) interfaces.AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultAnalysisTTL
	}
	return &analysisCache{
		repository: repository,
		logger:     log,
		ttl:        ttl,
		nowFunc:    utils.Now,
	}
}

// Get returns the cached entry for the email, or nil when absent or stale.
// A stale entry is treated as a miss, never served.
func (c *analysisCache) Get(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCache.Get")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	entry, err := c.repository.GetByEmailID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if entry == nil || !entry.Valid(c.nowFunc()) {
		span.LogKV("cache", "miss")
		return nil, nil
	}
	span.LogKV("cache", "hit")
	return entry, nil
}

// GetOrCompute returns a fresh cached entry or computes one. Concurrent
// callers for the same email share a single compute; a failed compute writes
// nothing and the error propagates to every waiter.
func (c *analysisCache) GetOrCompute(ctx context.Context, emailID string, compute func(ctx context.Context) (*interfaces.AnalysisResult, error)) (*models.AnalysisCacheEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCache.GetOrCompute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	if entry, err := c.Get(ctx, emailID); err != nil {
		return nil, err
	} else if entry != nil {
		return entry, nil
	}

	result, err, shared := c.group.Do(emailID, func() (interface{}, error) {
		// Re-check under the flight. The winner of a previous flight may
		// have populated the entry while we waited.
		if entry, err := c.Get(ctx, emailID); err != nil {
			return nil, err
		} else if entry != nil {
			return entry, nil
		}

		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		now := c.nowFunc()
		entry := &models.AnalysisCacheEntry{
			EmailID:        emailID,
			AnalysisResult: computed.Analysis,
			DraftResult:    computed.Draft,
			ComputedAt:     now,
			ExpiresAt:      now.Add(c.ttl),
		}
		if err := c.repository.Upsert(ctx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("singleflight.shared", shared)

	return result.(*models.AnalysisCacheEntry), nil
}

func (c *analysisCache) SweepExpired(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCache.SweepExpired")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	removed, err := c.repository.DeleteExpired(ctx, c.nowFunc())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if removed > 0 {
		c.logger.Infof("Swept %d expired analysis cache entries", removed)
	}
	return removed, nil
}

func (c *analysisCache) Invalidate(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCache.Invalidate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	c.group.Forget(emailID)
	if err := c.repository.Delete(ctx, emailID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
