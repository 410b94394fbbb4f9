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
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type webhookSubscriptionRepository struct {
	db *gorm.DB
}

func NewWebhookSubscriptionRepository(db *gorm.DB) interfaces.WebhookSubscriptionRepository {
	return &webhookSubscriptionRepository{db: db}
}

func (r *webhookSubscriptionRepository) GetByAccountID(ctx context.Context, accountID string) (*models.WebhookSubscription, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "webhookSubscriptionRepository.GetByAccountID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var sub models.WebhookSubscription
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return &sub, nil
}

func (r *webhookSubscriptionRepository) GetByChannelID(ctx context.Context, channelID string) (*models.WebhookSubscription, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "webhookSubscriptionRepository.GetByChannelID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var sub models.WebhookSubscription
	if err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return &sub, nil
}

func (r *webhookSubscriptionRepository) Save(ctx context.Context, sub *models.WebhookSubscription) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "webhookSubscriptionRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if sub == nil || sub.AccountID == "" {
		return ErrInvalidInput
	}

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.WebhookSubscription{}).
		Where("account_id = ?", sub.AccountID).
		Updates(map[string]interface{}{
			"provider":     sub.Provider,
			"channel_id":   sub.ChannelID,
			"resource":     sub.Resource,
			"client_state": sub.ClientState,
			"expires_at":   sub.ExpiresAt,
			"updated_at":   utils.Now(),
		})

	// If no record was updated, create a new one
	if result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(sub)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save webhook subscription: %w", result.Error)
	}

	return nil
}

func (r *webhookSubscriptionRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "webhookSubscriptionRepository.DeleteByAccountID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.WebhookSubscription{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete webhook subscription: %w", result.Error)
	}
	return nil
}

func (r *webhookSubscriptionRepository) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.WebhookSubscription, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "webhookSubscriptionRepository.ListExpiringBefore")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var subs []*models.WebhookSubscription
	if err := r.db.WithContext(ctx).
		Where("expires_at <= ?", deadline).
		Find(&subs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}
	return subs, nil
}
