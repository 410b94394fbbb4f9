package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/dto"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	mailsync_errors "github.com/aware88/fresh-ai-crm-sub016/internal/errors"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
)

type analysisService struct {
	cfg             *config.AIServiceConfig
	emailRepository interfaces.EmailRepository
}

func NewAnalysisService(cfg *config.AIServiceConfig, emailRepository interfaces.EmailRepository) interfaces.AnalysisService {
	return &analysisService{
		cfg:             cfg,
		emailRepository: emailRepository,
	}
}

func (s *analysisService) AnalyzeEmail(ctx context.Context, emailID string) (*interfaces.AnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.AnalyzeEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, emailID)

	email, err := s.emailRepository.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if email == nil {
		return nil, mailsync_errors.ErrNotFound
	}

	request := dto.EmailAnalysisRequest{
		EmailId:     email.ID,
		Subject:     email.Subject,
		FromAddress: email.FromAddress,
		FromName:    email.FromName,
		Snippet:     email.Snippet,
	}
	tracing.LogObjectAsJson(span, "request", request)

	payload, err := json.Marshal(request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Url+"/internal/v1/analyzeEmail", bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("X-AI-API-KEY", s.cfg.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	client := &http.Client{
		Timeout: 60 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(mailsync_errors.ErrComputeFailure, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "Unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = errors.Wrapf(mailsync_errors.ErrComputeFailure, "request failed with status code %d: %s", resp.StatusCode, string(body))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response dto.EmailAnalysisResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	tracing.LogObjectAsJson(span, "response", response)

	return &interfaces.AnalysisResult{
		Analysis: response.Analysis,
		Draft:    response.Draft,
	}, nil
}
