package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/dto"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/services/events"
)

type AnalyzeEmailListener struct {
	events.BaseEventListener
	analysisCache   interfaces.AnalysisCache
	analysisService interfaces.AnalysisService
}

func NewAnalyzeEmailListener(
	logger logger.Logger, analysisCache interfaces.AnalysisCache, analysisService interfaces.AnalysisService,
) interfaces.EventListener {
	return &AnalyzeEmailListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[dto.AnalysisRequested](), // subscribed event
			events.QueueAnalyzeEmail,                     // listening on Direct queue
		),
		analysisCache:   analysisCache,
		analysisService: analysisService,
	}
}

func (l *AnalyzeEmailListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AnalyzeEmailListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	analysisRequested, err := events.DecodeEventData[dto.AnalysisRequested](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	_, err = l.analysisCache.GetOrCompute(ctx, analysisRequested.EmailId, func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return l.analysisService.AnalyzeEmail(ctx, analysisRequested.EmailId)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}
