package ingest

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// ingestionPipeline turns provider change batches into canonical email rows.
// The (account_id, provider_message_id) pair is the identity key; re-running
// the same batch is a no-op.
type ingestionPipeline struct {
	accountRepository interfaces.AccountRepository
	emailRepository   interfaces.EmailRepository
	analysisRequester interfaces.AnalysisRequester
	logger            logger.Logger
}

func NewIngestionPipeline(
	accountRepository interfaces.AccountRepository,
	emailRepository interfaces.EmailRepository,
	analysisRequester interfaces.AnalysisRequester,
	log logger.Logger,
) interfaces.IngestionPipeline {
	return &ingestionPipeline{
		accountRepository: accountRepository,
		emailRepository:   emailRepository,
		analysisRequester: analysisRequester,
		logger:            log,
	}
}

func (p *ingestionPipeline) Ingest(ctx context.Context, accountID string, changes []interfaces.EmailChange, opts interfaces.IngestOptions) (interfaces.IngestResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionPipeline.Ingest")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	span.LogKV("changes.count", len(changes))

	result := interfaces.IngestResult{}
	if len(changes) == 0 {
		return result, nil
	}

	account, err := p.accountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	if account == nil {
		tracing.TraceErr(span, ErrAccountGone)
		return result, ErrAccountGone
	}

	for _, change := range changes {
		messageID := utils.NormalizeMessageID(change.ProviderMessageID)
		if messageID == "" {
			result.Skipped++
			continue
		}

		existing, err := p.emailRepository.GetByProviderMessageID(ctx, accountID, messageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return result, err
		}

		if existing == nil {
			email := p.newEmail(account, messageID, change)
			if err := p.emailRepository.Create(ctx, email); err != nil {
				tracing.TraceErr(span, err)
				return result, err
			}
			result.Upserted++
			p.requestAnalysis(ctx, opts, account.TenantID, email.ID)
			continue
		}

		merged, changed := p.merge(existing, change)
		if !changed {
			result.Skipped++
			continue
		}
		if err := p.emailRepository.UpdateMutableFields(ctx, merged); err != nil {
			tracing.TraceErr(span, err)
			return result, err
		}
		result.Upserted++
		// Re-request on merged rows too; the analysis cache absorbs
		// duplicates while its entry is still fresh
		p.requestAnalysis(ctx, opts, account.TenantID, merged.ID)
	}

	span.LogKV("result.upserted", result.Upserted, "result.skipped", result.Skipped)
	return result, nil
}

func (p *ingestionPipeline) newEmail(account *models.Account, messageID string, change interfaces.EmailChange) *models.Email {
	email := &models.Email{
		AccountID:         account.ID,
		Provider:          account.Provider,
		ProviderMessageID: messageID,
		ThreadID:          change.ThreadID,
		Subject:           change.Subject,
		FromAddress:       change.FromAddress,
		FromName:          change.FromName,
		Snippet:           change.Snippet,
		ReadFlag:          change.Read,
		Labels:            change.Labels,
		UpdatedAt:         utils.Now(),
	}
	if !change.ProviderUpdatedAt.IsZero() {
		email.ProviderUpdatedAt = utils.TimePtr(change.ProviderUpdatedAt)
	}
	if !change.ReceivedAt.IsZero() {
		email.ReceivedAt = utils.TimePtr(change.ReceivedAt)
	}
	return email
}

// merge folds provider metadata into the local row. The read flag only moves
// when the provider reports a modification time strictly newer than the local
// one: a locally flipped flag survives replays of stale provider snapshots.
func (p *ingestionPipeline) merge(local *models.Email, change interfaces.EmailChange) (*models.Email, bool) {
	merged := *local
	changed := false

	if change.Subject != "" && change.Subject != merged.Subject {
		merged.Subject = change.Subject
		changed = true
	}
	if change.FromAddress != "" && change.FromAddress != merged.FromAddress {
		merged.FromAddress = change.FromAddress
		changed = true
	}
	if change.FromName != "" && change.FromName != merged.FromName {
		merged.FromName = change.FromName
		changed = true
	}
	if change.Snippet != "" && change.Snippet != merged.Snippet {
		merged.Snippet = change.Snippet
		changed = true
	}
	if change.ThreadID != "" && change.ThreadID != merged.ThreadID {
		merged.ThreadID = change.ThreadID
		changed = true
	}
	if change.Labels != nil && !equalLabels(merged.Labels, change.Labels) {
		merged.Labels = change.Labels
		changed = true
	}

	if p.providerWins(local, change) {
		if merged.ReadFlag != change.Read {
			merged.ReadFlag = change.Read
			changed = true
		}
		merged.ProviderUpdatedAt = utils.TimePtr(change.ProviderUpdatedAt)
		if local.ProviderUpdatedAt == nil || !local.ProviderUpdatedAt.Equal(change.ProviderUpdatedAt) {
			changed = true
		}
	}

	if changed {
		merged.UpdatedAt = utils.Now()
	}
	return &merged, changed
}

// providerWins reports whether the provider snapshot is authoritative for the
// read flag. Without a provider timestamp, or with one at or behind the local
// update time, local state wins.
func (p *ingestionPipeline) providerWins(local *models.Email, change interfaces.EmailChange) bool {
	if change.ProviderUpdatedAt.IsZero() {
		return false
	}
	return change.ProviderUpdatedAt.After(local.UpdatedAt)
}

func (p *ingestionPipeline) requestAnalysis(ctx context.Context, opts interfaces.IngestOptions, tenantID, emailID string) {
	if !opts.RequestAnalysis || p.analysisRequester == nil {
		return
	}
	// Best effort: analysis population must never fail an ingestion pass.
	if err := p.analysisRequester.RequestAnalysis(ctx, tenantID, emailID); err != nil {
		p.logger.Warnf("Failed to request analysis for email %s: %v", emailID, err)
	}
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
