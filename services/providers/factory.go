package providers

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/services/providers/gmailgw"
	"github.com/aware88/fresh-ai-crm-sub016/services/providers/graphgw"
	"github.com/aware88/fresh-ai-crm-sub016/services/providers/imapgw"
)

// gatewayFactory builds one gateway per account, keyed off the account's
// provider tag. OAuth providers resolve their access token here, so a revoked
// grant surfaces as ErrAuthInvalid before any provider call is made.
type gatewayFactory struct {
	accountRepository interfaces.AccountRepository
	tokenProvider     interfaces.TokenProvider
	gmailConfig       *config.GmailConfig
	logger            logger.Logger
}

func NewGatewayFactory(
	accountRepository interfaces.AccountRepository,
	tokenProvider interfaces.TokenProvider,
	gmailConfig *config.GmailConfig,
	log logger.Logger,
) interfaces.GatewayFactory {
	return &gatewayFactory{
		accountRepository: accountRepository,
		tokenProvider:     tokenProvider,
		gmailConfig:       gmailConfig,
		logger:            log,
	}
}

func (f *gatewayFactory) GatewayFor(ctx context.Context, accountID string) (interfaces.ProviderGateway, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gatewayFactory.GatewayFor")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := f.accountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, mailsync_errors.ErrNotFound
	}
	span.SetTag("provider", account.Provider.String())

	switch account.Provider {
	case enum.EmailProviderIMAP:
		return imapgw.NewGateway(account, f.logger), nil
	case enum.EmailProviderGmail:
		token, err := f.accessToken(ctx, account)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return gmailgw.NewGateway(ctx, account, token, f.gmailConfig.PubSubTopic, f.logger)
	case enum.EmailProviderOutlook:
		token, err := f.accessToken(ctx, account)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		return graphgw.NewGateway(account, token, f.logger)
	default:
		return nil, errors.Errorf("unsupported provider %s", account.Provider)
	}
}

func (f *gatewayFactory) accessToken(ctx context.Context, account *models.Account) (*oauth2.Token, error) {
	if account.TokenRef == "" {
		return nil, errors.Wrap(mailsync_errors.ErrAuthInvalid, "account has no token reference")
	}
	return f.tokenProvider.AccessToken(ctx, account.TokenRef)
}
