package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

// tokenService resolves opaque token references against the credential
// vault. OAuth secrets never land in the mailsync database.
type tokenService struct {
	cfg *config.TokenServiceConfig
}

func NewTokenService(cfg *config.TokenServiceConfig) interfaces.TokenProvider {
	return &tokenService{cfg: cfg}
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *tokenService) AccessToken(ctx context.Context, tokenRef string) (*oauth2.Token, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.AccessToken")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if tokenRef == "" {
		return nil, errors.Wrap(mailsync_errors.ErrAuthInvalid, "empty token reference")
	}

	url := fmt.Sprintf("%s/internal/v1/tokens/%s", s.cfg.Url, tokenRef)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("X-TOKEN-SERVICE-API-KEY", s.cfg.ApiKey)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "Unable to read response body")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		err = errors.Wrapf(mailsync_errors.ErrAuthInvalid, "token service returned status %d", resp.StatusCode)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("token request failed with status code %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response tokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &oauth2.Token{
		AccessToken: response.AccessToken,
		TokenType:   response.TokenType,
		Expiry:      response.ExpiresAt,
	}, nil
}
