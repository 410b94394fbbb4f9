package readstatus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type fakeEmailRepository struct {
	emails map[string]*models.Email // keyed by internal id
	owners map[string]string        // account id -> owning user id
}

func (r *fakeEmailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	return r.emails[id], nil
}

func (r *fakeEmailRepository) GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error) {
	for _, email := range r.emails {
		if email.AccountID == accountID && email.ProviderMessageID == providerMessageID {
			return email, nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepository) FindByProviderMessageID(ctx context.Context, userID, providerMessageID string) (*models.Email, error) {
	var foreign *models.Email
	for _, email := range r.emails {
		if email.ProviderMessageID != providerMessageID {
			continue
		}
		if r.owners[email.AccountID] == userID {
			return email, nil
		}
		foreign = email
	}
	return foreign, nil
}

func (r *fakeEmailRepository) Create(ctx context.Context, email *models.Email) error {
	r.emails[email.ID] = email
	return nil
}

func (r *fakeEmailRepository) UpdateMutableFields(ctx context.Context, email *models.Email) error {
	r.emails[email.ID] = email
	return nil
}

func (r *fakeEmailRepository) SetReadFlag(ctx context.Context, id string, read bool) error {
	for _, email := range r.emails {
		if email.ID == id {
			email.ReadFlag = read
			email.UpdatedAt = utils.Now()
		}
	}
	return nil
}

func (r *fakeEmailRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	for _, email := range r.emails {
		if email.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

type fakeAccountRepository struct {
	accounts map[string]*models.Account
}

func (r *fakeAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.accounts[id], nil
}

func (r *fakeAccountRepository) GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Account, error) {
	for _, account := range r.accounts {
		if account.EmailAddress == emailAddress {
			return account, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepository) ListActiveForUser(ctx context.Context, tenantID, userID string) ([]*models.Account, error) {
	var out []*models.Account
	for _, account := range r.accounts {
		if account.TenantID == tenantID && account.UserID == userID && account.Active {
			out = append(out, account)
		}
	}
	return out, nil
}

type recordingAnalysisCache struct {
	invalidated []string
}

func (c *recordingAnalysisCache) Get(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error) {
	return nil, nil
}

func (c *recordingAnalysisCache) GetOrCompute(ctx context.Context, emailID string, compute func(ctx context.Context) (*interfaces.AnalysisResult, error)) (*models.AnalysisCacheEntry, error) {
	return nil, nil
}

func (c *recordingAnalysisCache) Invalidate(ctx context.Context, emailID string) error {
	c.invalidated = append(c.invalidated, emailID)
	return nil
}

func (c *recordingAnalysisCache) SweepExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService() (interfaces.ReadStatusService, *fakeEmailRepository, *recordingAnalysisCache) {
	emailRepo := &fakeEmailRepository{
		emails: map[string]*models.Email{
			"email_42": {
				ID:                "email_42",
				AccountID:         "acct_1",
				Provider:          enum.EmailProviderGmail,
				ProviderMessageID: "msg-42",
				Subject:           "Offer",
				ReadFlag:          false,
			},
		},
		owners: map[string]string{"acct_1": "user_1"},
	}
	accountRepo := &fakeAccountRepository{accounts: map[string]*models.Account{
		"acct_1": {
			ID:       "acct_1",
			TenantID: "tenant_1",
			UserID:   "user_1",
			Provider: enum.EmailProviderGmail,
			Active:   true,
		},
	}}
	cache := &recordingAnalysisCache{}
	service := NewReadStatusService(emailRepo, accountRepo, cache, getLogger())
	return service, emailRepo, cache
}

func TestSetReadStatus_OwnerMarksRead(t *testing.T) {
	// Arrange
	service, emailRepo, cache := newTestService()
	ctx := context.Background()

	// Act
	err := service.SetReadStatus(ctx, "user_1", "msg-42", true)

	// Assert
	require.NoError(t, err)
	assert.True(t, emailRepo.emails["email_42"].ReadFlag)
	assert.Equal(t, []string{"email_42"}, cache.invalidated)
}

func TestSetReadStatus_NoChangeSkipsInvalidation(t *testing.T) {
	// Arrange
	service, _, cache := newTestService()
	ctx := context.Background()

	// Act: the message is already unread
	err := service.SetReadStatus(ctx, "user_1", "msg-42", false)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, cache.invalidated)
}

func TestSetReadStatus_UnknownMessage(t *testing.T) {
	// Arrange
	service, _, _ := newTestService()
	ctx := context.Background()

	// Act
	err := service.SetReadStatus(ctx, "user_1", "msg-missing", true)

	// Assert
	assert.ErrorIs(t, err, mailsync_errors.ErrNotFound)
}

func TestSetReadStatus_NonOwnerDenied(t *testing.T) {
	// Arrange
	service, emailRepo, cache := newTestService()
	ctx := context.Background()

	// Act
	err := service.SetReadStatus(ctx, "user_2", "msg-42", true)

	// Assert
	assert.ErrorIs(t, err, mailsync_errors.ErrAccessDenied)
	assert.False(t, emailRepo.emails["email_42"].ReadFlag)
	assert.Empty(t, cache.invalidated)
}

func TestSetReadStatus_SharedMessageIDResolvesOwnCopy(t *testing.T) {
	// Arrange: the same IMAP Message-ID lives in two users' mailboxes
	emailRepo := &fakeEmailRepository{
		emails: map[string]*models.Email{
			"email_a": {
				ID:                "email_a",
				AccountID:         "acct_1",
				Provider:          enum.EmailProviderIMAP,
				ProviderMessageID: "msg-dup",
				ReadFlag:          false,
			},
			"email_b": {
				ID:                "email_b",
				AccountID:         "acct_2",
				Provider:          enum.EmailProviderIMAP,
				ProviderMessageID: "msg-dup",
				ReadFlag:          false,
			},
		},
		owners: map[string]string{"acct_1": "user_1", "acct_2": "user_2"},
	}
	accountRepo := &fakeAccountRepository{accounts: map[string]*models.Account{
		"acct_1": {ID: "acct_1", TenantID: "tenant_1", UserID: "user_1", Provider: enum.EmailProviderIMAP, Active: true},
		"acct_2": {ID: "acct_2", TenantID: "tenant_1", UserID: "user_2", Provider: enum.EmailProviderIMAP, Active: true},
	}}
	cache := &recordingAnalysisCache{}
	service := NewReadStatusService(emailRepo, accountRepo, cache, getLogger())
	ctx := context.Background()

	// Act: the second user marks their copy read
	err := service.SetReadStatus(ctx, "user_2", "msg-dup", true)

	// Assert: their own row moved, the other user's row did not
	require.NoError(t, err)
	assert.True(t, emailRepo.emails["email_b"].ReadFlag)
	assert.False(t, emailRepo.emails["email_a"].ReadFlag)
	assert.Equal(t, []string{"email_b"}, cache.invalidated)
}

func TestSetReadStatus_MissingUserID(t *testing.T) {
	// Arrange
	service, _, _ := newTestService()
	ctx := context.Background()

	// Act
	err := service.SetReadStatus(ctx, "", "msg-42", true)

	// Assert
	assert.ErrorIs(t, err, mailsync_errors.ErrUserIDMissing)
}
