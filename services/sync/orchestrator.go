package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// Orchestrator owns all live sync sessions. One session per account, one
// worker goroutine per session; a trigger at most marks a pass as pending.
type Orchestrator struct {
	cfg            *config.SyncConfig
	publicURL      string
	accountRepo    interfaces.AccountRepository
	syncStateRepo  interfaces.SyncStateRepository
	webhookSubRepo interfaces.WebhookSubscriptionRepository
	gatewayFactory interfaces.GatewayFactory
	pipeline       interfaces.IngestionPipeline
	logger         logger.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	sessions      map[string]*session
	sessionsMutex gosync.RWMutex
}

func NewOrchestrator(
	cfg *config.SyncConfig,
	publicURL string,
	accountRepo interfaces.AccountRepository,
	syncStateRepo interfaces.SyncStateRepository,
	webhookSubRepo interfaces.WebhookSubscriptionRepository,
	gatewayFactory interfaces.GatewayFactory,
	pipeline interfaces.IngestionPipeline,
	log logger.Logger,
) *Orchestrator {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:            cfg,
		publicURL:      publicURL,
		accountRepo:    accountRepo,
		syncStateRepo:  syncStateRepo,
		webhookSubRepo: webhookSubRepo,
		gatewayFactory: gatewayFactory,
		pipeline:       pipeline,
		logger:         log,
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
		sessions:       make(map[string]*session),
	}
}

func (o *Orchestrator) StartSession(ctx context.Context, sessionConfig interfaces.SessionConfig) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.StartSession")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, sessionConfig.AccountID)

	if sessionConfig.AccountID == "" {
		return mailsync_errors.ErrValidation
	}
	if sessionConfig.PollInterval <= 0 {
		sessionConfig.PollInterval = o.cfg.PollInterval
	}

	o.sessionsMutex.Lock()
	if _, exists := o.sessions[sessionConfig.AccountID]; exists {
		o.sessionsMutex.Unlock()
		return mailsync_errors.ErrSessionExists
	}

	sessionCtx, cancel := context.WithCancel(o.rootCtx)
	sess := newSession(sessionConfig, cancel)
	o.sessions[sessionConfig.AccountID] = sess
	o.sessionsMutex.Unlock()

	go o.run(sessionCtx, sess)

	o.logger.Infof("Started sync session for account %s (%s)", sessionConfig.AccountID, sessionConfig.Provider)
	return nil
}

func (o *Orchestrator) StopSession(ctx context.Context, accountID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Orchestrator.StopSession")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	o.sessionsMutex.Lock()
	sess, exists := o.sessions[accountID]
	if exists {
		delete(o.sessions, accountID)
	}
	o.sessionsMutex.Unlock()

	if !exists {
		return nil
	}

	sess.setState(enum.SessionStopping)
	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(10 * time.Second):
		o.logger.Warnf("Timed out waiting for session %s to stop", accountID)
	}
	return nil
}

func (o *Orchestrator) StartAllForUser(ctx context.Context, tenantID, userID string) []interfaces.AccountSyncResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.StartAllForUser")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenantID)

	accounts, err := o.accountRepo.ListActiveForUser(ctx, tenantID, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return []interfaces.AccountSyncResult{{
			Status:  "error",
			Message: "failed to list accounts",
		}}
	}

	results := make([]interfaces.AccountSyncResult, 0, len(accounts))
	for _, account := range accounts {
		result := interfaces.AccountSyncResult{AccountID: account.ID}

		err := o.StartSession(ctx, interfaces.SessionConfig{
			AccountID:         account.ID,
			UserID:            account.UserID,
			TenantID:          account.TenantID,
			Provider:          account.Provider,
			PollInterval:      o.cfg.PollInterval,
			EnablePushChannel: o.cfg.EnablePushChannels,
			EnableAnalysis:    o.cfg.EnableAnalysis && account.AnalysisEnabled,
		})
		switch {
		case err == nil:
			result.Status = "success"
		case errors.Is(err, mailsync_errors.ErrSessionExists):
			result.Status = "success"
			result.Message = "session already running"
		default:
			// One broken account never blocks the others
			result.Status = "error"
			result.Message = err.Error()
			tracing.TraceErr(span, err)
		}
		results = append(results, result)
	}
	return results
}

func (o *Orchestrator) TriggerSync(accountID string) bool {
	o.sessionsMutex.RLock()
	sess, exists := o.sessions[accountID]
	o.sessionsMutex.RUnlock()

	if !exists {
		return false
	}
	return sess.trigger()
}

// TriggerAll fires a coalesced trigger on every live session. Used by the
// resync heartbeat.
func (o *Orchestrator) TriggerAll() int {
	o.sessionsMutex.RLock()
	sessions := make([]*session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		sessions = append(sessions, sess)
	}
	o.sessionsMutex.RUnlock()

	triggered := 0
	for _, sess := range sessions {
		if sess.trigger() {
			triggered++
		}
	}
	return triggered
}

func (o *Orchestrator) Status() map[string]interfaces.SessionStatus {
	o.sessionsMutex.RLock()
	defer o.sessionsMutex.RUnlock()

	statuses := make(map[string]interfaces.SessionStatus, len(o.sessions))
	for accountID, sess := range o.sessions {
		statuses[accountID] = sess.status()
	}
	return statuses
}

func (o *Orchestrator) Stop() error {
	o.sessionsMutex.Lock()
	sessions := make([]*session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		sessions = append(sessions, sess)
	}
	o.sessions = make(map[string]*session)
	o.sessionsMutex.Unlock()

	o.rootCancel()
	for _, sess := range sessions {
		select {
		case <-sess.done:
		case <-time.After(10 * time.Second):
			o.logger.Warnf("Timed out waiting for session %s to stop", sess.config.AccountID)
		}
	}
	return nil
}

// run is the session worker loop. Passes happen on the ticker, on coalesced
// triggers, and once at startup; a failing pass stretches the gap to the next
// one exponentially.
func (o *Orchestrator) run(ctx context.Context, sess *session) {
	defer close(sess.done)
	defer tracing.RecoverAndLogToJaeger(o.logger)

	steadyState := o.establishPushChannel(ctx, sess)

	ticker := time.NewTicker(sess.config.PollInterval)
	defer ticker.Stop()

	o.performPass(ctx, sess, steadyState)

	for {
		if parked := o.waitBeforeNextPass(ctx, sess); parked {
			return
		}

		select {
		case <-ctx.Done():
			o.teardown(sess)
			return
		case <-sess.triggerCh:
			o.performPass(ctx, sess, steadyState)
		case <-ticker.C:
			o.performPass(ctx, sess, steadyState)
		}
	}
}

// waitBeforeNextPass applies the failure backoff. Returns true when the
// session parked itself on an authentication failure.
func (o *Orchestrator) waitBeforeNextPass(ctx context.Context, sess *session) bool {
	if sess.isParked() {
		return true
	}

	failures := sess.status().ConsecutiveFailures
	if failures == 0 {
		return false
	}

	delay := backoffDelay(o.cfg.BackoffBase, o.cfg.BackoffMax, failures)
	o.logger.Warnf("Session %s backing off %v after %d consecutive failures",
		sess.config.AccountID, delay, failures)

	select {
	case <-ctx.Done():
		o.teardown(sess)
		return true
	case <-time.After(delay):
		return false
	}
}

func (o *Orchestrator) performPass(ctx context.Context, sess *session, steadyState enum.SessionState) {
	sess.beginPass()
	defer sess.endPass()

	// Detached from the session context so a stop lets an in-flight pass
	// finish; the pass timeout still bounds it
	passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PassTimeout)
	defer cancel()

	passCtx = utils.WithCustomContext(passCtx, &utils.CustomContext{
		Tenant: sess.config.TenantID,
		UserId: sess.config.UserID,
	})

	span, passCtx := tracing.StartTracerSpan(passCtx, "Orchestrator.performPass")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(passCtx, span)
	tracing.TagAccount(span, sess.config.AccountID)

	sess.markTriggered(utils.Now())

	err := o.syncOnce(passCtx, sess)
	if err == nil {
		sess.recordSuccess(steadyState)
		return
	}

	tracing.TraceErr(span, err)
	failures := sess.recordFailure(err)

	if errors.Is(err, mailsync_errors.ErrAuthInvalid) {
		// A revoked grant cannot heal on its own; park until restarted
		sess.park()
		o.logger.Errorf("Session %s parked: credentials invalid: %v", sess.config.AccountID, err)
		return
	}

	if o.cfg.MaxConsecutiveFailures > 0 && failures >= o.cfg.MaxConsecutiveFailures {
		sess.setState(enum.SessionDegraded)
	}
	o.logger.Warnf("Sync pass failed for account %s (attempt %d): %v", sess.config.AccountID, failures, err)
}

func (o *Orchestrator) syncOnce(ctx context.Context, sess *session) error {
	accountID := sess.config.AccountID

	state, err := o.syncStateRepo.GetSyncState(ctx, accountID, sess.config.Provider)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	cursor := ""
	if state != nil {
		cursor = state.Cursor
	}

	// The gateway is rebuilt per pass so OAuth tokens stay fresh
	gateway, err := o.gatewayFactory.GatewayFor(ctx, accountID)
	if err != nil {
		return err
	}

	batch, err := gateway.FetchChangesSince(ctx, cursor)
	if err != nil {
		return err
	}

	ingestOpts := interfaces.IngestOptions{RequestAnalysis: sess.config.EnableAnalysis}
	if _, err := o.pipeline.Ingest(ctx, accountID, batch.Changes, ingestOpts); err != nil {
		return err
	}

	// Persist the cursor only after the batch landed; a crash replays the
	// batch, which the pipeline absorbs as no-ops
	if batch.NextCursor != "" && batch.NextCursor != cursor {
		err = o.syncStateRepo.SaveSyncState(ctx, &models.SyncState{
			AccountID: accountID,
			Provider:  sess.config.Provider,
			Cursor:    batch.NextCursor,
		})
		if err != nil {
			return fmt.Errorf("failed to save sync state: %w", err)
		}
	}
	return nil
}

// establishPushChannel tries to move the session onto push notifications and
// returns the steady state the session settles into after successful passes.
// Polling continues either way; a push setup that should have worked but
// failed leaves the session degraded rather than quietly on polling.
func (o *Orchestrator) establishPushChannel(ctx context.Context, sess *session) enum.SessionState {
	if !sess.config.EnablePushChannel {
		return enum.SessionPolling
	}

	notificationURL := fmt.Sprintf("%s/webhooks/%s", o.publicURL, sess.config.Provider)

	gateway, err := o.gatewayFactory.GatewayFor(ctx, sess.config.AccountID)
	if err != nil {
		o.logger.Warnf("Push channel setup skipped for account %s: %v", sess.config.AccountID, err)
		return enum.SessionPolling
	}

	channel, err := gateway.OpenPushChannel(ctx, notificationURL)
	if err != nil {
		if errors.Is(err, mailsync_errors.ErrPushNotSupported) {
			return enum.SessionPolling
		}
		o.logger.Warnf("Push channel open failed for account %s, polling in degraded state: %v", sess.config.AccountID, err)
		return enum.SessionDegraded
	}

	err = o.webhookSubRepo.Save(ctx, &models.WebhookSubscription{
		AccountID:   sess.config.AccountID,
		Provider:    sess.config.Provider,
		ChannelID:   channel.ID,
		Resource:    channel.Resource,
		ClientState: channel.ClientState,
		ExpiresAt:   channel.ExpiresAt,
	})
	if err != nil {
		o.logger.Errorf("Failed to persist webhook subscription for account %s: %v", sess.config.AccountID, err)
		_ = gateway.ClosePushChannel(ctx, channel.ID)
		return enum.SessionDegraded
	}

	sess.setPushChannelID(channel.ID)
	return enum.SessionPushListening
}

// RenewPushChannels re-opens channels expiring within the window. Cron-driven.
func (o *Orchestrator) RenewPushChannels(ctx context.Context, window time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.RenewPushChannels")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	expiring, err := o.webhookSubRepo.ListExpiringBefore(ctx, utils.Now().Add(window))
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	for _, sub := range expiring {
		o.sessionsMutex.RLock()
		sess, live := o.sessions[sub.AccountID]
		o.sessionsMutex.RUnlock()
		if !live || !sess.config.EnablePushChannel {
			continue
		}

		gateway, err := o.gatewayFactory.GatewayFor(ctx, sub.AccountID)
		if err != nil {
			o.logger.Warnf("Push channel renewal skipped for account %s: %v", sub.AccountID, err)
			continue
		}

		_ = gateway.ClosePushChannel(ctx, sub.ChannelID)

		notificationURL := fmt.Sprintf("%s/webhooks/%s", o.publicURL, sub.Provider)
		channel, err := gateway.OpenPushChannel(ctx, notificationURL)
		if err != nil {
			o.logger.Warnf("Push channel renewal failed for account %s: %v", sub.AccountID, err)
			continue
		}

		err = o.webhookSubRepo.Save(ctx, &models.WebhookSubscription{
			AccountID:   sub.AccountID,
			Provider:    sub.Provider,
			ChannelID:   channel.ID,
			Resource:    channel.Resource,
			ClientState: channel.ClientState,
			ExpiresAt:   channel.ExpiresAt,
		})
		if err != nil {
			o.logger.Errorf("Failed to persist renewed subscription for account %s: %v", sub.AccountID, err)
			continue
		}
		sess.setPushChannelID(channel.ID)
	}
	return nil
}

func (o *Orchestrator) teardown(sess *session) {
	sess.setState(enum.SessionStopping)

	if channelID := sess.getPushChannelID(); channelID != "" {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		gateway, err := o.gatewayFactory.GatewayFor(cleanupCtx, sess.config.AccountID)
		if err == nil {
			if err := gateway.ClosePushChannel(cleanupCtx, channelID); err != nil {
				o.logger.Warnf("Failed to close push channel for account %s: %v", sess.config.AccountID, err)
			}
		}
		if err := o.webhookSubRepo.DeleteByAccountID(cleanupCtx, sess.config.AccountID); err != nil {
			o.logger.Warnf("Failed to delete webhook subscription for account %s: %v", sess.config.AccountID, err)
		}
	}

	sess.setState(enum.SessionStopped)
}

func backoffDelay(base, max time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
