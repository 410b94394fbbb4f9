package services

import (
	"github.com/aware88/fresh-ai-crm-sub016/config"
	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/listeners"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/repository"
	"github.com/aware88/fresh-ai-crm-sub016/services/aicache"
	"github.com/aware88/fresh-ai-crm-sub016/services/analysis"
	"github.com/aware88/fresh-ai-crm-sub016/services/events"
	"github.com/aware88/fresh-ai-crm-sub016/services/ingest"
	"github.com/aware88/fresh-ai-crm-sub016/services/providers"
	"github.com/aware88/fresh-ai-crm-sub016/services/readstatus"
	"github.com/aware88/fresh-ai-crm-sub016/services/sync"
	"github.com/aware88/fresh-ai-crm-sub016/services/tokens"
)

type Services struct {
	EventsService     *events.EventsService
	TokenProvider     interfaces.TokenProvider
	AnalysisService   interfaces.AnalysisService
	AnalysisCache     interfaces.AnalysisCache
	GatewayFactory    interfaces.GatewayFactory
	IngestionPipeline interfaces.IngestionPipeline
	ReadStatusService interfaces.ReadStatusService
	SyncOrchestrator  *sync.Orchestrator
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	tokenProvider := tokens.NewTokenService(cfg.TokenServiceConfig)
	analysisService := analysis.NewAnalysisService(cfg.AIServiceConfig, repos.EmailRepository)
	analysisCache := aicache.NewAnalysisCache(repos.AnalysisCacheRepository, log, cfg.CacheConfig.AnalysisTTL)
	analysisRequester := analysis.NewEventAnalysisRequester(eventsService.Publisher)

	gatewayFactory := providers.NewGatewayFactory(repos.AccountRepository, tokenProvider, cfg.GmailConfig, log)
	pipeline := ingest.NewIngestionPipeline(
		repos.AccountRepository,
		repos.EmailRepository,
		analysisRequester,
		log,
	)

	orchestrator := sync.NewOrchestrator(
		cfg.SyncConfig,
		cfg.AppConfig.PublicUrl,
		repos.AccountRepository,
		repos.SyncStateRepository,
		repos.WebhookSubscriptionRepository,
		gatewayFactory,
		pipeline,
		log,
	)

	services := Services{
		EventsService:     eventsService,
		TokenProvider:     tokenProvider,
		AnalysisService:   analysisService,
		AnalysisCache:     analysisCache,
		GatewayFactory:    gatewayFactory,
		IngestionPipeline: pipeline,
		ReadStatusService: readstatus.NewReadStatusService(repos.EmailRepository, repos.AccountRepository, analysisCache, log),
		SyncOrchestrator:  orchestrator,
	}

	services.registerListeners(log)

	return &services, nil
}

// registerListeners wires the queue consumers. Queues start draining once the
// server calls ListenQueues.
func (s *Services) registerListeners(log logger.Logger) {
	s.EventsService.Subscriber.RegisterListener(
		listeners.NewAnalyzeEmailListener(log, s.AnalysisCache, s.AnalysisService),
	)
}

// ListenQueues starts consuming every queue with a registered listener.
func (s *Services) ListenQueues() error {
	return s.EventsService.Subscriber.ListenQueue(events.QueueAnalyzeEmail)
}

func (s *Services) Shutdown() {
	if s.SyncOrchestrator != nil {
		_ = s.SyncOrchestrator.Stop()
	}
	if s.EventsService != nil {
		_ = s.EventsService.Close()
	}
}
