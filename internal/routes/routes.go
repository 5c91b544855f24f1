package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/handlers"
	"taskagent/internal/middleware"
	"taskagent/internal/ratelimit"
)

type Handlers struct {
	Chat    *handlers.ChatHandler
	Tasks   *handlers.TaskHandler
	Reports *handlers.ReportHandler
	// Integrations is nil when no Telegram bot is configured.
	Integrations *handlers.IntegrationsHandler
}

// SetupRoutes registers every endpoint. The agent endpoint is limited inside
// the engine; the rest of the API has its own budget.
func SetupRoutes(r *gin.Engine, h Handlers, jwtSecret []byte, limiter ratelimit.Limiter, logger *zap.Logger) *gin.Engine {
	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if h.Integrations != nil {
		// Unsigned updates spend the auth budget of their client IP. Signed
		// ones are limited per user inside the engine.
		r.POST("/integrations/telegram/webhook",
			middleware.RateLimitUnless(h.Integrations.Signed, limiter, ratelimit.AuthPolicy, logger),
			h.Integrations.Webhook)
	}

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))

	r.POST("/agents/task", h.Chat.Send)

	api := r.Group("/", middleware.RateLimit(limiter, ratelimit.APIPolicy, logger))
	{
		api.GET("/messages", h.Chat.History)
		api.DELETE("/messages", h.Chat.Clear)
		api.GET("/tasks", h.Tasks.List)
		api.GET("/tasks/report.pdf", h.Reports.TaskReport)
	}

	if h.Integrations != nil {
		integr := r.Group("/integrations", middleware.RateLimit(limiter, ratelimit.AuthPolicy, logger))
		{
			integr.POST("/telegram/request-link", h.Integrations.RequestTelegramLink)
		}
	}

	return r
}
