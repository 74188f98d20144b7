package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/modgate/backend/internal/config"
	"github.com/modgate/backend/internal/http/handlers"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/middleware"
	"github.com/modgate/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SetupRouter wires every route. rdb may be nil, in which case the API rate
// limit is kept per instance.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb redis.UniversalClient,
	staff middleware.TierDirectory,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	authHandler *handlers.AuthHandler,
	invocationHandler *handlers.InvocationHandler,
	ticketHandler *handlers.TicketHandler,
	auditHandler *handlers.AuditHandler,
	communityHandler *handlers.CommunityHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(m.Middleware())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Bot runtime (shared secret)
	internal := app.Group("/internal", middleware.InternalSecretMiddleware(cfg.BotInternalSecret))
	internal.Post("/invocations", invocationHandler.Invoke)
	internal.Get("/commands", invocationHandler.ListCommands)
	internal.Post("/tokens", authHandler.IssueToken)
	internal.Post("/communities/:communityId/roles/invalidate", communityHandler.RolesChanged)
	internal.Delete("/communities/:communityId", communityHandler.Removed)

	api := app.Group("/api/v1")

	// Meta (public, no auth required)
	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/ticket-statuses", metaHandler.GetTicketStatuses)
	api.Get("/meta/ticket-priorities", metaHandler.GetTicketPriorities)
	api.Get("/meta/action-types", metaHandler.GetActionTypes)

	// Protected endpoints, rate limited per user
	protected := api.Group("",
		middleware.AuthMiddleware(cfg.JWTSecret, staff, log),
		middleware.RateLimitMiddleware(rdb, cfg.APIRateLimitPerMinute, time.Minute),
	)

	protected.Get("/me", authHandler.Me)
	protected.Get("/commands", invocationHandler.ListCommands)

	// Tickets
	support := middleware.RequireTier(models.TierSupport)
	protected.Post("/tickets", ticketHandler.CreateTicket)
	protected.Get("/tickets/my", ticketHandler.MyTickets)
	protected.Get("/tickets/stats", support, ticketHandler.Statistics)
	protected.Get("/tickets", support, ticketHandler.ListTickets)
	protected.Get("/tickets/:id", ticketHandler.GetTicket)
	protected.Post("/tickets/:id/messages", ticketHandler.AddMessage)
	protected.Post("/tickets/:id/status", ticketHandler.SetStatus)
	protected.Post("/tickets/:id/assign", ticketHandler.Assign)
	protected.Post("/tickets/:id/priority", ticketHandler.SetPriority)

	// Audit
	audit := protected.Group("/communities/:communityId/audit", middleware.RequireTier(models.TierModerator))
	audit.Get("", auditHandler.Recent)
	audit.Get("/stats", auditHandler.Statistics)
	audit.Get("/config", auditHandler.Configuration)
	audit.Get("/users/:userId", auditHandler.History)
	audit.Put("/stream", middleware.RequireTier(models.TierAdmin), auditHandler.SetStream)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
