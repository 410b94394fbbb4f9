package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type inMemoryAccountRepository struct {
	accounts map[string]models.Account
}

func (r *inMemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := account
	return &copied, nil
}

func (r *inMemoryAccountRepository) GetByEmailAddress(ctx context.Context, emailAddress string) (*models.Account, error) {
	for _, account := range r.accounts {
		if account.EmailAddress == emailAddress {
			copied := account
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryAccountRepository) ListActiveForUser(ctx context.Context, tenantID, userID string) ([]*models.Account, error) {
	var out []*models.Account
	for _, account := range r.accounts {
		if account.TenantID == tenantID && account.UserID == userID && account.Active {
			copied := account
			out = append(out, &copied)
		}
	}
	return out, nil
}

type inMemoryEmailRepository struct {
	mu     sync.Mutex
	emails map[string]models.Email
	nextID int
}

func newInMemoryEmailRepository() *inMemoryEmailRepository {
	return &inMemoryEmailRepository{emails: make(map[string]models.Email)}
}

func (r *inMemoryEmailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, email := range r.emails {
		if email.ID == id {
			copied := email
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEmailRepository) GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emails[accountID+"|"+providerMessageID]
	if !ok {
		return nil, nil
	}
	copied := email
	return &copied, nil
}

func (r *inMemoryEmailRepository) FindByProviderMessageID(ctx context.Context, userID, providerMessageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, email := range r.emails {
		if email.ProviderMessageID == providerMessageID {
			copied := email
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEmailRepository) Create(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if email.ID == "" {
		r.nextID++
		email.ID = fmt.Sprintf("email_%d", r.nextID)
	}
	email.CreatedAt = utils.Now()
	r.emails[email.AccountID+"|"+email.ProviderMessageID] = *email
	return nil
}

func (r *inMemoryEmailRepository) UpdateMutableFields(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := email.AccountID + "|" + email.ProviderMessageID
	if _, ok := r.emails[key]; !ok {
		return ErrAccountGone
	}
	r.emails[key] = *email
	return nil
}

func (r *inMemoryEmailRepository) SetReadFlag(ctx context.Context, id string, read bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, email := range r.emails {
		if email.ID == id {
			email.ReadFlag = read
			email.UpdatedAt = utils.Now()
			r.emails[key] = email
			return nil
		}
	}
	return nil
}

func (r *inMemoryEmailRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, email := range r.emails {
		if email.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

type recordingAnalysisRequester struct {
	mu       sync.Mutex
	requests []string
}

func (r *recordingAnalysisRequester) RequestAnalysis(ctx context.Context, tenantID, emailID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, emailID)
	return nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testAccount() models.Account {
	return models.Account{
		ID:           "acct_1",
		TenantID:     "tenant_1",
		UserID:       "user_1",
		Provider:     enum.EmailProviderGmail,
		EmailAddress: "owner@example.com",
		Active:       true,
	}
}

// analyze is the option set the orchestrator passes for analysis-enabled sessions
var analyze = interfaces.IngestOptions{RequestAnalysis: true}

func newTestPipeline(t *testing.T) (interfaces.IngestionPipeline, *inMemoryEmailRepository, *recordingAnalysisRequester) {
	t.Helper()
	accountRepo := &inMemoryAccountRepository{accounts: map[string]models.Account{"acct_1": testAccount()}}
	emailRepo := newInMemoryEmailRepository()
	requester := &recordingAnalysisRequester{}
	pipeline := NewIngestionPipeline(accountRepo, emailRepo, requester, getLogger())
	return pipeline, emailRepo, requester
}

func TestIngest_CreatesNewEmails(t *testing.T) {
	// Arrange
	pipeline, emailRepo, requester := newTestPipeline(t)
	ctx := context.Background()
	receivedAt := utils.Now().Add(-time.Hour)

	changes := []interfaces.EmailChange{
		{
			ProviderMessageID: "msg-1",
			Subject:           "Quarterly review",
			FromAddress:       "alice@example.com",
			FromName:          "Alice",
			Snippet:           "Attached are the numbers",
			ReceivedAt:        receivedAt,
		},
		{
			ProviderMessageID: "msg-2",
			Subject:           "Renewal",
			FromAddress:       "bob@example.com",
			Read:              true,
			ReceivedAt:        receivedAt,
		},
	}

	// Act
	result, err := pipeline.Ingest(ctx, "acct_1", changes, analyze)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 0, result.Skipped)

	stored, err := emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Quarterly review", stored.Subject)
	assert.False(t, stored.ReadFlag)

	// Every new email queues an analysis request
	assert.Len(t, requester.requests, 2)
}

func TestIngest_SameBatchTwiceIsNoOp(t *testing.T) {
	// Arrange
	pipeline, emailRepo, _ := newTestPipeline(t)
	ctx := context.Background()

	changes := []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Hello", ReceivedAt: utils.Now().Add(-time.Hour)},
	}

	// Act
	first, err := pipeline.Ingest(ctx, "acct_1", changes, analyze)
	require.NoError(t, err)
	second, err := pipeline.Ingest(ctx, "acct_1", changes, analyze)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, first.Upserted)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Upserted)

	count, err := emailRepo.CountByAccount(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngest_StaleProviderDataDoesNotResurrectUnread(t *testing.T) {
	// Arrange: msg-42 arrives unread, then the user reads it locally
	pipeline, emailRepo, _ := newTestPipeline(t)
	ctx := context.Background()
	staleTimestamp := utils.Now().Add(-2 * time.Hour)

	_, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-42", Subject: "Offer", Read: false, ProviderUpdatedAt: staleTimestamp},
	}, analyze)
	require.NoError(t, err)

	stored, err := emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-42")
	require.NoError(t, err)
	require.NoError(t, emailRepo.SetReadFlag(ctx, stored.ID, true))

	// Act: a delayed provider batch replays the pre-read snapshot
	_, err = pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-42", Subject: "Offer", Read: false, ProviderUpdatedAt: staleTimestamp},
	}, analyze)
	require.NoError(t, err)

	// Assert: the local read flag survives
	stored, err = emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-42")
	require.NoError(t, err)
	assert.True(t, stored.ReadFlag)
}

func TestIngest_NewerProviderTimestampMovesReadFlag(t *testing.T) {
	// Arrange
	pipeline, emailRepo, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Hello", Read: false},
	}, analyze)
	require.NoError(t, err)

	// Act: the provider reports a modification after the local write
	_, err = pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Hello", Read: true, ProviderUpdatedAt: utils.Now().Add(time.Minute)},
	}, analyze)
	require.NoError(t, err)

	// Assert
	stored, err := emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-1")
	require.NoError(t, err)
	assert.True(t, stored.ReadFlag)
}

func TestIngest_MergesMutableMetadata(t *testing.T) {
	// Arrange
	pipeline, emailRepo, requester := newTestPipeline(t)
	ctx := context.Background()

	_, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Draft subject", Snippet: "partial"},
	}, analyze)
	require.NoError(t, err)
	initialRequests := len(requester.requests)

	// Act
	result, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Final subject", Snippet: "complete", Labels: []string{"inbox"}},
	}, analyze)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 1, result.Upserted)
	stored, err := emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "Final subject", stored.Subject)
	assert.Equal(t, "complete", stored.Snippet)
	assert.Equal(t, []string{"inbox"}, []string(stored.Labels))

	// A changed merge queues a fresh analysis request too
	assert.Len(t, requester.requests, initialRequests+1)
}

func TestIngest_AnalysisDisabledQueuesNothing(t *testing.T) {
	// Arrange
	pipeline, emailRepo, requester := newTestPipeline(t)
	ctx := context.Background()

	// Act: the session for this mailbox has analysis switched off
	result, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1", Subject: "Hello"},
	}, interfaces.IngestOptions{RequestAnalysis: false})

	// Assert: the email lands but no analysis request goes out
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	stored, err := emailRepo.GetByProviderMessageID(ctx, "acct_1", "msg-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, requester.requests)
}

func TestIngest_UnknownAccount(t *testing.T) {
	// Arrange
	pipeline, _, _ := newTestPipeline(t)
	ctx := context.Background()

	// Act
	_, err := pipeline.Ingest(ctx, "acct_missing", []interfaces.EmailChange{
		{ProviderMessageID: "msg-1"},
	}, analyze)

	// Assert
	assert.ErrorIs(t, err, ErrAccountGone)
}

func TestIngest_BlankMessageIDSkipped(t *testing.T) {
	// Arrange
	pipeline, _, _ := newTestPipeline(t)
	ctx := context.Background()

	// Act
	result, err := pipeline.Ingest(ctx, "acct_1", []interfaces.EmailChange{
		{ProviderMessageID: "  "},
		{ProviderMessageID: "<msg-9>", Subject: "Wrapped id"},
	}, analyze)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 1, result.Skipped)
}
