package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/partner-portal/backend/internal/audit"
	"github.com/partner-portal/backend/internal/config"
	"github.com/partner-portal/backend/internal/db"
	"github.com/partner-portal/backend/internal/events"
	apphttp "github.com/partner-portal/backend/internal/http"
	"github.com/partner-portal/backend/internal/http/handlers"
	"github.com/partner-portal/backend/internal/middleware"
	"github.com/partner-portal/backend/internal/repositories"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Audit pipeline
	activityRepo := repositories.NewActivityRepo(pool)
	writer := audit.NewWriter(activityRepo, cfg.BatchSize, cfg.FlushInterval, cfg.EmitBuffer, log)
	writer.Start(ctx)

	broadcaster := audit.NewBroadcaster(log)
	go broadcaster.Run(ctx, writer.Events())

	classifier := audit.NewClassifier(cfg.CaptureInfo)
	recorder := audit.NewRecorder(classifier, writer, log)

	// Sweep results go through redis so every API instance sees them.
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	notifier := events.NewAdminNotifier(publisher, log)
	sweeper := audit.NewSweeper(activityRepo, notifier, cfg.RetentionDays, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	auditHandler := handlers.NewAuditHandler(activityRepo, sweeper, log)
	wsHub := handlers.NewWSHub(cfg, broadcaster, subscriber, log)
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, middleware.AuditRecorder(recorder), authHandler, auditHandler, wsHub)

	// Graceful shutdown: stop accepting requests, then drain the writer.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer drainCancel()
	if err := writer.Close(drainCtx); err != nil {
		log.Error("audit writer drain failed", zap.Error(err))
	} else {
		log.Info("audit writer drained")
	}
}
