package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/aware88/fresh-ai-crm-sub016/api/handlers"
	"github.com/aware88/fresh-ai-crm-sub016/api/middleware"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/repository"
	"github.com/aware88/fresh-ai-crm-sub016/internal/tracing"
	"github.com/aware88/fresh-ai-crm-sub016/services"
)

const appSourceName = "mailsync"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, log logger.Logger, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.SyncOrchestrator))

	// Provider push notifications authenticate through channel state, not the
	// service API key
	r.POST("/webhooks/:provider", handlers.ProviderWebhook(
		s.SyncOrchestrator,
		repos.WebhookSubscriptionRepository,
		repos.AccountRepository,
		log,
	))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILSYNC-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TenantValidationMiddleware())
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware(appSourceName))
	api.Use(middleware.TracingMiddleware())
	{
		sync := api.Group("/sync")
		{
			sync.POST("/start", handlers.StartSync(s.SyncOrchestrator))
			sync.POST("/stop", handlers.StopSync(s.SyncOrchestrator, repos.AccountRepository))
		}

		emails := api.Group("/emails")
		{
			emails.PUT("/:id/read", handlers.MarkRead(s.ReadStatusService))
			emails.GET("/:id/analysis", handlers.GetAnalysis(s.AnalysisCache, s.AnalysisService))
		}
	}
}
