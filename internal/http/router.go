package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/partner-portal/backend/internal/config"
	"github.com/partner-portal/backend/internal/http/handlers"
	"github.com/partner-portal/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	recorder fiber.Handler,
	authHandler *handlers.AuthHandler,
	auditHandler *handlers.AuditHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware. The audit recorder sits outside auth so failed
	// logins and anonymous probes are recorded too.
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(recorder)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/login", authHandler.Login)

	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))

	// Audit surface (admin only)
	admin := api.Group("/audit", middleware.AuthMiddleware(cfg, log), middleware.AdminMiddleware())
	admin.Get("/logs", auditHandler.QueryLogs)
	admin.Get("/logs/export", auditHandler.ExportLogs)
	admin.Post("/sweep", auditHandler.Sweep)

	// Live stream
	app.Use("/ws/audit", handlers.WSUpgradeMiddleware())
	app.Get("/ws/audit", websocket.New(wsHub.HandleWS))
}
