package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

type analysisCacheRepository struct {
	db *gorm.DB
}

func NewAnalysisCacheRepository(db *gorm.DB) interfaces.AnalysisCacheRepository {
	return &analysisCacheRepository{db: db}
}

func (r *analysisCacheRepository) GetByEmailID(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCacheRepository.GetByEmailID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entry models.AnalysisCacheEntry
	if err := r.db.WithContext(ctx).Where("email_id = ?", emailID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

func (r *analysisCacheRepository) Upsert(ctx context.Context, entry *models.AnalysisCacheEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCacheRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if entry == nil || entry.EmailID == "" {
		return ErrInvalidInput
	}

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.AnalysisCacheEntry{}).
		Where("email_id = ?", entry.EmailID).
		Updates(map[string]interface{}{
			"analysis_result": entry.AnalysisResult,
			"draft_result":    entry.DraftResult,
			"computed_at":     entry.ComputedAt,
			"expires_at":      entry.ExpiresAt,
		})

	// If no record was updated, create a new one
	if result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(entry)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to upsert cache entry: %w", result.Error)
	}

	return nil
}

func (r *analysisCacheRepository) Delete(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCacheRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("email_id = ?", emailID).
		Delete(&models.AnalysisCacheEntry{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete cache entry: %w", result.Error)
	}
	return nil
}

// DeleteExpired physically removes rows whose expiry has passed; called from
// the cache sweep cron job.
func (r *analysisCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisCacheRepository.DeleteExpired")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.AnalysisCacheEntry{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
