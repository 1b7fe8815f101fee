package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/internal/tracing"
)

const appSourceAPI = "mailsync-api"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, h *handlers.APIHandlers, apikey string) {
	if h == nil {
		panic("Handlers cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILSYNC-API-KEY",
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware(appSourceAPI))
	api.Use(middleware.TracingMiddleware())
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.Accounts.Register())
			accounts.GET("/:id", h.Accounts.Get())
			accounts.GET("/:id/emails", h.Emails.ListByAccount())
			accounts.POST("/:id/sync", h.Sync.Start())
			accounts.GET("/:id/sync/progress", h.Sync.Progress())
		}

		api.GET("/emails/:id", h.Emails.Get())
		api.GET("/emails/:id/attachments", h.Attachments.ListByEmail())
		api.POST("/attachments/:id/download", h.Attachments.Download())
	}
}
