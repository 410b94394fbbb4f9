package readstatus

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

// readStatusService applies user driven read flag changes. The mutation is
// local only; it is never pushed back to the provider.
type readStatusService struct {
	emailRepository   interfaces.EmailRepository
	accountRepository interfaces.AccountRepository
	analysisCache     interfaces.AnalysisCache
	logger            logger.Logger
}

func NewReadStatusService(
	emailRepository interfaces.EmailRepository,
	accountRepository interfaces.AccountRepository,
	analysisCache interfaces.AnalysisCache,
	log logger.Logger,
) interfaces.ReadStatusService {
	return &readStatusService{
		emailRepository:   emailRepository,
		accountRepository: accountRepository,
		analysisCache:     analysisCache,
		logger:            log,
	}
}

func (s *readStatusService) SetReadStatus(ctx context.Context, requestingUserID, providerMessageID string, isRead bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "readStatusService.SetReadStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if requestingUserID == "" {
		return mailsync_errors.ErrUserIDMissing
	}

	messageID := utils.NormalizeMessageID(providerMessageID)
	if messageID == "" {
		return mailsync_errors.ErrValidation
	}

	email, err := s.emailRepository.FindByProviderMessageID(ctx, requestingUserID, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		return mailsync_errors.ErrNotFound
	}

	account, err := s.accountRepository.GetByID(ctx, email.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if account == nil || account.UserID != requestingUserID {
		// Ownership failure deliberately carries no detail about the record.
		return mailsync_errors.ErrAccessDenied
	}

	if email.ReadFlag == isRead {
		return nil
	}

	if err := s.emailRepository.SetReadFlag(ctx, email.ID, isRead); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	// The message state changed, so any cached analysis may be stale.
	if err := s.analysisCache.Invalidate(ctx, email.ID); err != nil {
		tracing.TraceErr(span, err)
		s.logger.Warnf("Failed to invalidate analysis cache for email %s: %v", email.ID, err)
	}

	return nil
}
