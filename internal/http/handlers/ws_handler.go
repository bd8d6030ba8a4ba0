package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/partner-portal/backend/internal/audit"
	"github.com/partner-portal/backend/internal/auth"
	"github.com/partner-portal/backend/internal/config"
	"github.com/partner-portal/backend/internal/events"
	"github.com/partner-portal/backend/internal/http/dto"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// WSHub connects dashboard WebSocket clients to the broadcaster. Each
// connection owns one subscription, created on `subscribe`, replaced on
// `update_filters`, destroyed on `unsubscribe` or disconnect.
type WSHub struct {
	cfg         *config.Config
	broadcaster *audit.Broadcaster
	subscriber  events.Subscriber
	log         *zap.Logger
}

func NewWSHub(cfg *config.Config, broadcaster *audit.Broadcaster, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		broadcaster: broadcaster,
		subscriber:  subscriber,
		log:         log,
	}
}

// Start forwards cross-process admin notifications (published by the
// sweeper worker) to every local connection.
func (h *WSHub) Start(ctx context.Context) {
	err := h.subscriber.Subscribe(ctx, events.ChannelAdmin, func(event events.Event) {
		if event.Type != events.TypeAdminNotification {
			return
		}
		var notification models.AdminNotification
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return
		}
		if err := json.Unmarshal(data, &notification); err != nil {
			h.log.Error("malformed admin notification", zap.Error(err))
			return
		}
		h.broadcaster.NotifyAdmin(notification)
	})
	if err != nil {
		h.log.Error("failed to subscribe to admin channel", zap.Error(err))
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// wsSender serializes writes to one connection: the broadcast goroutine
// and the read-loop acks share it.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// HandleWS runs one dashboard connection: authenticate, then serve
// subscribe / update_filters / unsubscribe until the client goes away.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	sender := &wsSender{conn: conn}

	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = sender.Send(events.Event{Type: events.TypeError, Payload: "missing token"})
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil || claims.Role != auth.RoleAdmin {
		_ = sender.Send(events.Event{Type: events.TypeError, Payload: "invalid token"})
		conn.Close()
		return
	}

	connID := uuid.New().String()
	defer func() {
		h.broadcaster.Unsubscribe(connID)
		conn.Close()
		h.log.Debug("ws connection closed", zap.String("conn_id", connID))
	}()

	h.log.Debug("ws connection opened",
		zap.String("conn_id", connID),
		zap.String("actor_id", claims.ActorID),
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg dto.WSClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sender.Send(events.Event{Type: events.TypeError, Payload: "malformed message"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			if err := h.broadcaster.Subscribe(connID, toEntryFilter(msg.Filter), sender); err != nil {
				_ = sender.Send(events.Event{Type: events.TypeError, Payload: err.Error()})
				continue
			}
			_ = sender.Send(events.Event{Type: events.TypeSubscribed})

		case "update_filters":
			if err := h.broadcaster.UpdateFilter(connID, toEntryFilter(msg.Filter)); err != nil {
				_ = sender.Send(events.Event{Type: events.TypeError, Payload: err.Error()})
				continue
			}
			_ = sender.Send(events.Event{Type: events.TypeSubscribed})

		case "unsubscribe":
			h.broadcaster.Unsubscribe(connID)

		default:
			_ = sender.Send(events.Event{Type: events.TypeError, Payload: "unknown message type"})
		}
	}
}

func toEntryFilter(f dto.SubscriptionFilter) models.EntryFilter {
	return models.EntryFilter{
		TenantID: f.TenantID,
		Category: models.Category(f.Category),
		Actions:  f.Actions,
	}
}
