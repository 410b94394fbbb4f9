package analysis

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/dto"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/services/events"
)

// eventAnalysisRequester queues analysis work through RabbitMQ so ingestion
// never blocks on the AI collaborator.
type eventAnalysisRequester struct {
	publisher interfaces.EventPublisher
}

func NewEventAnalysisRequester(publisher interfaces.EventPublisher) interfaces.AnalysisRequester {
	return &eventAnalysisRequester{publisher: publisher}
}

func (r *eventAnalysisRequester) RequestAnalysis(ctx context.Context, tenantID, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "eventAnalysisRequester.RequestAnalysis")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenantID)
	tracing.TagEntity(span, emailID)

	message := dto.AnalysisRequested{
		Tenant:  tenantID,
		EmailId: emailID,
	}

	err := r.publisher.PublishDirectEvent(ctx, emailID, enum.EMAIL, events.GetEventType[dto.AnalysisRequested](), message)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
