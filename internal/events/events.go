package events

import "context"

// Event types pushed to live dashboard connections.
const (
	TypeActivityLog       = "activity_log"
	TypeAdminNotification = "admin_notification"
	TypeSubscribed        = "subscribed"
	TypeError             = "error"
)

// ChannelAdmin carries operational alerts between processes; the sweeper
// publishes here and every API instance forwards to its connections.
const ChannelAdmin = "audit:admin"

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(Event)) error
}
