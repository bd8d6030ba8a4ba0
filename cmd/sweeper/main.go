package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/partner-portal/backend/internal/audit"
	"github.com/partner-portal/backend/internal/config"
	"github.com/partner-portal/backend/internal/db"
	"github.com/partner-portal/backend/internal/events"
	"github.com/partner-portal/backend/internal/repositories"
	"go.uber.org/zap"
)

// The sweeper runs the retention policy on a fixed schedule and reports
// every outcome on the shared admin channel. Sweep failures are not
// retried here; they surface as critical notifications for operators.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	activityRepo := repositories.NewActivityRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	notifier := events.NewAdminNotifier(publisher, log)
	sweeper := audit.NewSweeper(activityRepo, notifier, cfg.RetentionDays, log)

	log.Info("sweeper started",
		zap.Int("retention_days", cfg.RetentionDays),
		zap.Duration("interval", cfg.SweepInterval),
	)

	runSweep(ctx, sweeper, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runSweep(ctx, sweeper, log)
		case <-sigCh:
			log.Info("shutting down sweeper")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runSweep(ctx context.Context, sweeper *audit.Sweeper, log *zap.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := sweeper.Sweep(sweepCtx); err != nil {
		log.Error("scheduled sweep failed", zap.Error(err))
	}
}
