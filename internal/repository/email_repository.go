package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db}
}

// GetByID retrieves an email by its internal ID
func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

// GetByProviderMessageID retrieves an email by its provider-issued id within one account
func (r *emailRepository) GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByProviderMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	providerMessageID = utils.NormalizeMessageID(providerMessageID)

	var email models.Email
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

// FindByProviderMessageID resolves a provider message id for one user.
// Message ids are only unique per account, so the user's own mailboxes are
// searched first; the same id in two users' mailboxes must never resolve to
// the other user's row. A foreign row is only surfaced when the user has no
// copy at all, so the ownership check upstream can deny instead of reporting
// absence.
func (r *emailRepository) FindByProviderMessageID(ctx context.Context, userID, providerMessageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.FindByProviderMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	providerMessageID = utils.NormalizeMessageID(providerMessageID)

	var email models.Email
	err := r.db.WithContext(ctx).
		Joins("JOIN mail_accounts ON mail_accounts.id = emails.account_id").
		Where("emails.provider_message_id = ? AND mail_accounts.user_id = ? AND mail_accounts.deleted_at IS NULL",
			providerMessageID, userID).
		First(&email).Error
	if err == nil {
		return &email, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) Create(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil {
		return ErrInvalidInput
	}

	email.ProviderMessageID = utils.NormalizeMessageID(email.ProviderMessageID)

	result := r.db.WithContext(ctx).Create(email)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

// UpdateMutableFields merges re-ingested metadata into an existing row.
// Immutable identity columns are never touched.
func (r *emailRepository) UpdateMutableFields(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.UpdateMutableFields")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil || email.ID == "" {
		return ErrInvalidInput
	}

	email.UpdatedAt = utils.Now()

	result := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", email.ID).
		Updates(map[string]interface{}{
			"subject":             email.Subject,
			"from_address":        email.FromAddress,
			"from_name":           email.FromName,
			"snippet":             email.Snippet,
			"read_flag":           email.ReadFlag,
			"labels":              email.Labels,
			"provider_updated_at": email.ProviderUpdatedAt,
			"updated_at":          email.UpdatedAt,
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEmailNotFound
	}
	return nil
}

// SetReadFlag updates only the read flag and the updated-at stamp
func (r *emailRepository) SetReadFlag(ctx context.Context, id string, read bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetReadFlag")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"read_flag":  read,
			"updated_at": utils.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEmailNotFound
	}
	return nil
}

func (r *emailRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("account_id = ?", accountID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}
