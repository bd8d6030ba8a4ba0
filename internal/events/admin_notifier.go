package events

import (
	"context"

	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// AdminNotifier publishes sweep results and other operational alerts on
// the shared admin channel so every API instance can forward them to its
// live connections.
type AdminNotifier struct {
	pub Publisher
	log *zap.Logger
}

func NewAdminNotifier(pub Publisher, log *zap.Logger) *AdminNotifier {
	return &AdminNotifier{pub: pub, log: log}
}

func (n *AdminNotifier) NotifyAdmin(notification models.AdminNotification) {
	event := Event{Type: TypeAdminNotification, Payload: notification}
	if err := n.pub.Publish(context.Background(), ChannelAdmin, event); err != nil {
		n.log.Error("failed to publish admin notification", zap.Error(err))
	}
}
