package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
)

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

type fakeSyncStateRepository struct {
	mu     gosync.Mutex
	states map[string]*models.SyncState
	saves  []string
}

func newFakeSyncStateRepository() *fakeSyncStateRepository {
	return &fakeSyncStateRepository{states: make(map[string]*models.SyncState)}
}

func (r *fakeSyncStateRepository) GetSyncState(ctx context.Context, accountID string, provider enum.EmailProvider) (*models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[accountID+"|"+provider.String()]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (r *fakeSyncStateRepository) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *state
	r.states[state.AccountID+"|"+state.Provider.String()] = &copied
	r.saves = append(r.saves, state.Cursor)
	return nil
}

func (r *fakeSyncStateRepository) DeleteAccountSyncStates(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.states {
		if r.states[key].AccountID == accountID {
			delete(r.states, key)
		}
	}
	return nil
}

func (r *fakeSyncStateRepository) savedCursors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saves...)
}

type fakeWebhookSubscriptionRepository struct {
	mu   gosync.Mutex
	subs map[string]*models.WebhookSubscription
}

func newFakeWebhookSubscriptionRepository() *fakeWebhookSubscriptionRepository {
	return &fakeWebhookSubscriptionRepository{subs: make(map[string]*models.WebhookSubscription)}
}

func (r *fakeWebhookSubscriptionRepository) GetByAccountID(ctx context.Context, accountID string) (*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[accountID], nil
}

func (r *fakeWebhookSubscriptionRepository) GetByChannelID(ctx context.Context, channelID string) (*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.ChannelID == channelID {
			return sub, nil
		}
	}
	return nil, nil
}

func (r *fakeWebhookSubscriptionRepository) Save(ctx context.Context, sub *models.WebhookSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.AccountID] = sub
	return nil
}

func (r *fakeWebhookSubscriptionRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, accountID)
	return nil
}

func (r *fakeWebhookSubscriptionRepository) ListExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.WebhookSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, sub := range r.subs {
		if !sub.ExpiresAt.After(deadline) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// scriptedGateway drives test scenarios: each call to FetchChangesSince pops
// the next scripted response.
type scriptedGateway struct {
	provider    enum.EmailProvider
	pushErr     error
	pushChannel *interfaces.PushChannel

	mu           gosync.Mutex
	fetchCalls   int
	seenCursors  []string
	responses    []fetchResponse
	blockCh      chan struct{}
	fetchStarted chan struct{}
}

type fetchResponse struct {
	batch *interfaces.ChangeBatch
	err   error
}

func (g *scriptedGateway) Provider() enum.EmailProvider {
	return g.provider
}

func (g *scriptedGateway) FetchChangesSince(ctx context.Context, cursor string) (*interfaces.ChangeBatch, error) {
	g.mu.Lock()
	g.fetchCalls++
	g.seenCursors = append(g.seenCursors, cursor)
	started := g.fetchStarted
	block := g.blockCh
	var response fetchResponse
	if len(g.responses) > 0 {
		response = g.responses[0]
		g.responses = g.responses[1:]
	} else {
		response = fetchResponse{batch: &interfaces.ChangeBatch{NextCursor: cursor}}
	}
	g.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return response.batch, response.err
}

func (g *scriptedGateway) OpenPushChannel(ctx context.Context, notificationURL string) (*interfaces.PushChannel, error) {
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	if g.pushChannel != nil {
		return g.pushChannel, nil
	}
	return nil, mailsync_errors.ErrPushNotSupported
}

func (g *scriptedGateway) ClosePushChannel(ctx context.Context, channelID string) error {
	return nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

func (g *scriptedGateway) cursors() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seenCursors...)
}

type fakeGatewayFactory struct {
	gateways map[string]interfaces.ProviderGateway
}

func (f *fakeGatewayFactory) GatewayFor(ctx context.Context, accountID string) (interfaces.ProviderGateway, error) {
	gateway, ok := f.gateways[accountID]
	if !ok {
		return nil, mailsync_errors.ErrNotFound
	}
	return gateway, nil
}

type recordingPipeline struct {
	mu            gosync.Mutex
	batches       [][]interfaces.EmailChange
	analysisByAcc map[string]bool
}

func (p *recordingPipeline) Ingest(ctx context.Context, accountID string, changes []interfaces.EmailChange, opts interfaces.IngestOptions) (interfaces.IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, changes)
	if p.analysisByAcc == nil {
		p.analysisByAcc = make(map[string]bool)
	}
	p.analysisByAcc[accountID] = opts.RequestAnalysis
	return interfaces.IngestResult{Upserted: len(changes)}, nil
}

func (p *recordingPipeline) analysisFlag(accountID string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	flag, seen := p.analysisByAcc[accountID]
	return flag, seen
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		PollInterval:           time.Hour,
		PassTimeout:            5 * time.Second,
		BackoffBase:            time.Millisecond,
		BackoffMax:             5 * time.Millisecond,
		MaxConsecutiveFailures: 10,
		EnablePushChannels:     false,
		EnableAnalysis:         true,
	}
}

func imapAccount(id, user string) *models.Account {
	return &models.Account{
		ID:              id,
		TenantID:        "tenant_1",
		UserID:          user,
		Provider:        enum.EmailProviderIMAP,
		Active:          true,
		AnalysisEnabled: true,
	}
}

func sessionConfigFor(accountID string) interfaces.SessionConfig {
	return interfaces.SessionConfig{
		AccountID:    accountID,
		UserID:       "user_1",
		TenantID:     "tenant_1",
		Provider:     enum.EmailProviderIMAP,
		PollInterval: time.Hour,
	}
}

func newTestOrchestrator(gateways map[string]interfaces.ProviderGateway, accounts map[string]*models.Account) (*Orchestrator, *fakeSyncStateRepository, *recordingPipeline) {
	syncStateRepo := newFakeSyncStateRepository()
	pipeline := &recordingPipeline{}
	orchestrator := NewOrchestrator(
		testSyncConfig(),
		"https://mailsync.example.com",
		&fakeAccountRepository{accounts: accounts},
		syncStateRepo,
		newFakeWebhookSubscriptionRepository(),
		&fakeGatewayFactory{gateways: gateways},
		pipeline,
		getLogger(),
	)
	return orchestrator, syncStateRepo, pipeline
}

func TestStartSession_Idempotent(t *testing.T) {
	// Arrange
	gateway := &scriptedGateway{provider: enum.EmailProviderIMAP}
	orchestrator, _, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	// Act
	first := orchestrator.StartSession(ctx, sessionConfigFor("acct_1"))
	second := orchestrator.StartSession(ctx, sessionConfigFor("acct_1"))

	// Assert
	require.NoError(t, first)
	assert.ErrorIs(t, second, mailsync_errors.ErrSessionExists)
	assert.Len(t, orchestrator.Status(), 1)
}

func TestTriggerSync_CoalescesWhilePassInFlight(t *testing.T) {
	// Arrange: the first fetch blocks until released
	gateway := &scriptedGateway{
		provider:     enum.EmailProviderIMAP,
		blockCh:      make(chan struct{}),
		fetchStarted: make(chan struct{}, 1),
	}
	orchestrator, _, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))
	<-gateway.fetchStarted

	// Act: a burst of triggers while the pass is running
	first := orchestrator.TriggerSync("acct_1")
	second := orchestrator.TriggerSync("acct_1")
	close(gateway.blockCh)

	// Assert: triggers landing mid-pass fold into the running pass instead of
	// queuing another fetch
	assert.False(t, first)
	assert.False(t, second)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, gateway.calls())
}

func TestTriggerSync_UnknownAccount(t *testing.T) {
	// Arrange
	orchestrator, _, _ := newTestOrchestrator(nil, nil)
	defer orchestrator.Stop()

	// Act / Assert
	assert.False(t, orchestrator.TriggerSync("acct_missing"))
}

func TestPerformPass_CursorAdvancesAndResumes(t *testing.T) {
	// Arrange: two passes with advancing cursors
	gateway := &scriptedGateway{
		provider: enum.EmailProviderIMAP,
		responses: []fetchResponse{
			{batch: &interfaces.ChangeBatch{
				Changes:    []interfaces.EmailChange{{ProviderMessageID: "msg-1"}},
				NextCursor: "100",
			}},
			{batch: &interfaces.ChangeBatch{
				Changes:    []interfaces.EmailChange{{ProviderMessageID: "msg-2"}},
				NextCursor: "200",
			}},
		},
	}
	orchestrator, syncStateRepo, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	// Act
	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))
	require.Eventually(t, func() bool {
		return gateway.calls() == 1
	}, 2*time.Second, 10*time.Millisecond)

	orchestrator.TriggerSync("acct_1")
	require.Eventually(t, func() bool {
		return gateway.calls() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Assert: the second pass resumed from the first pass's cursor and the
	// persisted cursor only ever moved forward
	require.Eventually(t, func() bool {
		return len(syncStateRepo.savedCursors()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"", "100"}, gateway.cursors())
	assert.Equal(t, []string{"100", "200"}, syncStateRepo.savedCursors())
}

func TestStartAllForUser_PartialFailureIsolation(t *testing.T) {
	// Arrange: three accounts, one of them already has a live session
	accounts := map[string]*models.Account{
		"acct_1": imapAccount("acct_1", "user_1"),
		"acct_2": imapAccount("acct_2", "user_1"),
		"acct_3": imapAccount("acct_3", "user_1"),
	}
	gateways := map[string]interfaces.ProviderGateway{
		"acct_1": &scriptedGateway{provider: enum.EmailProviderIMAP},
		"acct_2": &scriptedGateway{provider: enum.EmailProviderIMAP},
		"acct_3": &scriptedGateway{provider: enum.EmailProviderIMAP},
	}
	orchestrator, _, _ := newTestOrchestrator(gateways, accounts)
	defer orchestrator.Stop()
	ctx := context.Background()

	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_2")))

	// Act
	results := orchestrator.StartAllForUser(ctx, "tenant_1", "user_1")

	// Assert: every account gets its own result
	require.Len(t, results, 3)
	byAccount := make(map[string]interfaces.AccountSyncResult)
	for _, result := range results {
		byAccount[result.AccountID] = result
	}
	assert.Equal(t, "success", byAccount["acct_1"].Status)
	assert.Equal(t, "success", byAccount["acct_2"].Status)
	assert.Equal(t, "session already running", byAccount["acct_2"].Message)
	assert.Equal(t, "success", byAccount["acct_3"].Status)
	assert.Len(t, orchestrator.Status(), 3)
}

func TestPerformPass_AuthFailureParksSession(t *testing.T) {
	// Arrange
	gateway := &scriptedGateway{
		provider: enum.EmailProviderIMAP,
		responses: []fetchResponse{
			{err: mailsync_errors.ErrAuthInvalid},
		},
	}
	orchestrator, _, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	// Act
	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))

	// Assert: the session degrades and stops accepting triggers
	require.Eventually(t, func() bool {
		status, ok := orchestrator.Status()["acct_1"]
		return ok && status.State == enum.SessionDegraded
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, orchestrator.TriggerSync("acct_1"))
	assert.Equal(t, 1, gateway.calls())
}

func TestPerformPass_FailureKeepsSessionAlive(t *testing.T) {
	// Arrange: the first pass fails, the next one succeeds
	gateway := &scriptedGateway{
		provider: enum.EmailProviderIMAP,
		responses: []fetchResponse{
			{err: mailsync_errors.ErrProviderUnavailable},
			{batch: &interfaces.ChangeBatch{NextCursor: "50"}},
		},
	}
	orchestrator, syncStateRepo, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))
	require.Eventually(t, func() bool {
		return gateway.calls() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Act: trigger after the failed pass; the session must still be live
	require.Eventually(t, func() bool {
		return orchestrator.TriggerSync("acct_1")
	}, 2*time.Second, 10*time.Millisecond)

	// Assert
	require.Eventually(t, func() bool {
		return len(syncStateRepo.savedCursors()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"50"}, syncStateRepo.savedCursors())

	status := orchestrator.Status()["acct_1"]
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Empty(t, status.LastError)
}

func TestEstablishPushChannel_OpenFailureDegrades(t *testing.T) {
	// Arrange: the provider rejects the push subscription outright
	gateway := &scriptedGateway{
		provider: enum.EmailProviderIMAP,
		pushErr:  mailsync_errors.ErrProviderUnavailable,
	}
	orchestrator, _, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	sessionConfig := sessionConfigFor("acct_1")
	sessionConfig.EnablePushChannel = true

	// Act
	require.NoError(t, orchestrator.StartSession(ctx, sessionConfig))

	// Assert: polling keeps working but the session reports itself degraded
	require.Eventually(t, func() bool {
		return gateway.calls() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		status, ok := orchestrator.Status()["acct_1"]
		return ok && status.State == enum.SessionDegraded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, orchestrator.Status()["acct_1"].ConsecutiveFailures)
}

func TestEstablishPushChannel_OpensAndListens(t *testing.T) {
	// Arrange
	gateway := &scriptedGateway{
		provider: enum.EmailProviderIMAP,
		pushChannel: &interfaces.PushChannel{
			ID:          "chan-1",
			Resource:    "inbox",
			ClientState: "secret-state",
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		},
	}
	webhookSubRepo := newFakeWebhookSubscriptionRepository()
	orchestrator := NewOrchestrator(
		testSyncConfig(),
		"https://mailsync.example.com",
		&fakeAccountRepository{accounts: map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")}},
		newFakeSyncStateRepository(),
		webhookSubRepo,
		&fakeGatewayFactory{gateways: map[string]interfaces.ProviderGateway{"acct_1": gateway}},
		&recordingPipeline{},
		getLogger(),
	)
	defer orchestrator.Stop()
	ctx := context.Background()

	sessionConfig := sessionConfigFor("acct_1")
	sessionConfig.EnablePushChannel = true

	// Act
	require.NoError(t, orchestrator.StartSession(ctx, sessionConfig))

	// Assert
	require.Eventually(t, func() bool {
		status, ok := orchestrator.Status()["acct_1"]
		return ok && status.State == enum.SessionPushListening
	}, 2*time.Second, 10*time.Millisecond)

	sub, err := webhookSubRepo.GetByAccountID(ctx, "acct_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "chan-1", sub.ChannelID)
	assert.Equal(t, "secret-state", sub.ClientState)
}

func TestStartAllForUser_HonorsMailboxAnalysisOptOut(t *testing.T) {
	// Arrange: one mailbox has opted out of AI analysis
	accounts := map[string]*models.Account{
		"acct_1": imapAccount("acct_1", "user_1"),
		"acct_2": imapAccount("acct_2", "user_1"),
	}
	accounts["acct_2"].AnalysisEnabled = false
	gateways := map[string]interfaces.ProviderGateway{
		"acct_1": &scriptedGateway{provider: enum.EmailProviderIMAP},
		"acct_2": &scriptedGateway{provider: enum.EmailProviderIMAP},
	}
	orchestrator, _, pipeline := newTestOrchestrator(gateways, accounts)
	defer orchestrator.Stop()
	ctx := context.Background()

	// Act
	results := orchestrator.StartAllForUser(ctx, "tenant_1", "user_1")

	// Assert: the opt-out travels with the session into every ingestion pass
	require.Len(t, results, 2)
	require.Eventually(t, func() bool {
		_, seenFirst := pipeline.analysisFlag("acct_1")
		_, seenSecond := pipeline.analysisFlag("acct_2")
		return seenFirst && seenSecond
	}, 2*time.Second, 10*time.Millisecond)

	enabled, _ := pipeline.analysisFlag("acct_1")
	disabled, _ := pipeline.analysisFlag("acct_2")
	assert.True(t, enabled)
	assert.False(t, disabled)
}

func TestStopSession_LetsInFlightPassFinish(t *testing.T) {
	// Arrange: the pass is mid-fetch when the stop request lands
	gateway := &scriptedGateway{
		provider:     enum.EmailProviderIMAP,
		blockCh:      make(chan struct{}),
		fetchStarted: make(chan struct{}, 1),
		responses: []fetchResponse{
			{batch: &interfaces.ChangeBatch{NextCursor: "75"}},
		},
	}
	orchestrator, syncStateRepo, _ := newTestOrchestrator(
		map[string]interfaces.ProviderGateway{"acct_1": gateway},
		map[string]*models.Account{"acct_1": imapAccount("acct_1", "user_1")},
	)
	ctx := context.Background()

	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))
	<-gateway.fetchStarted

	// Act
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = orchestrator.StopSession(ctx, "acct_1")
	}()
	time.Sleep(20 * time.Millisecond)
	close(gateway.blockCh)

	// Assert: the pass ran to completion and persisted its cursor
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Equal(t, []string{"75"}, syncStateRepo.savedCursors())
	assert.Empty(t, orchestrator.Status())
}

func TestStopSession_UnknownAccountIsNoOp(t *testing.T) {
	// Arrange
	orchestrator, _, _ := newTestOrchestrator(nil, nil)
	defer orchestrator.Stop()

	// Act / Assert
	assert.NoError(t, orchestrator.StopSession(context.Background(), "acct_missing"))
}

func TestStop_ShutsDownAllSessions(t *testing.T) {
	// Arrange
	gateways := map[string]interfaces.ProviderGateway{
		"acct_1": &scriptedGateway{provider: enum.EmailProviderIMAP},
		"acct_2": &scriptedGateway{provider: enum.EmailProviderIMAP},
	}
	accounts := map[string]*models.Account{
		"acct_1": imapAccount("acct_1", "user_1"),
		"acct_2": imapAccount("acct_2", "user_1"),
	}
	orchestrator, _, _ := newTestOrchestrator(gateways, accounts)
	ctx := context.Background()

	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_1")))
	require.NoError(t, orchestrator.StartSession(ctx, sessionConfigFor("acct_2")))

	// Act
	err := orchestrator.Stop()

	// Assert
	require.NoError(t, err)
	assert.Empty(t, orchestrator.Status())
	assert.False(t, orchestrator.TriggerSync("acct_1"))
}
