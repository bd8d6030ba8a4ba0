package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// SweepStore is the slice of the persistent store the sweeper needs.
type SweepStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier pushes operational alerts to administrators.
type Notifier interface {
	NotifyAdmin(notification models.AdminNotification)
}

// Sweeper enforces the retention policy: one bulk delete of every entry
// older than the horizon. It never retries on its own; failures surface
// as critical admin notifications for operator follow-up, because a
// silently retried bulk delete is riskier than an explicit alert.
type Sweeper struct {
	store         SweepStore
	notifier      Notifier
	retentionDays int
	log           *zap.Logger
}

func NewSweeper(store SweepStore, notifier Notifier, retentionDays int, log *zap.Logger) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &Sweeper{
		store:         store,
		notifier:      notifier,
		retentionDays: retentionDays,
		log:           log,
	}
}

// Sweep deletes every persisted entry with created_at strictly before
// now minus the retention horizon and returns the count removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		s.notifier.NotifyAdmin(models.AdminNotification{
			Level:      models.NotificationCritical,
			Message:    fmt.Sprintf("retention sweep failed: %v", err),
			OccurredAt: time.Now().UTC(),
		})
		return 0, err
	}

	s.log.Info("retention sweep completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	s.notifier.NotifyAdmin(models.AdminNotification{
		Level:      models.NotificationInfo,
		Message:    fmt.Sprintf("retention sweep removed %d entries older than %d days", deleted, s.retentionDays),
		Count:      deleted,
		OccurredAt: time.Now().UTC(),
	})
	return deleted, nil
}
