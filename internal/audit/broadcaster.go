package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/partner-portal/backend/internal/events"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

var ErrUnknownSubscription = errors.New("audit: unknown subscription")

// Sender delivers one event to a live connection. Implementations must be
// safe for use from the broadcast goroutine; send errors are treated as
// best-effort delivery failures and logged, not retried.
type Sender interface {
	Send(event events.Event) error
}

type subscription struct {
	id     string
	filter models.EntryFilter
	sender Sender
}

// Broadcaster fans the writer's live stream out to registered
// subscriptions. The registry is read-mostly: every emitted entry takes a
// read lock, subscription changes take the write lock. Per-subscriber
// ordering follows emission order because a single Run goroutine delivers
// everything.
type Broadcaster struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string]*subscription
}

func NewBroadcaster(log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		log:  log,
		subs: make(map[string]*subscription),
	}
}

// Run consumes the writer's event stream until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context, entries <-chan models.LogEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			b.onEntry(entry)
		}
	}
}

// Subscribe registers a connection with a filter. Re-subscribing an
// existing connection replaces its filter.
func (b *Broadcaster) Subscribe(connID string, filter models.EntryFilter, sender Sender) error {
	if err := validateFilter(filter); err != nil {
		return err
	}

	b.mu.Lock()
	b.subs[connID] = &subscription{id: connID, filter: filter, sender: sender}
	b.mu.Unlock()

	b.log.Debug("subscription registered", zap.String("conn_id", connID))
	return nil
}

// UpdateFilter replaces the filter of an existing subscription.
func (b *Broadcaster) UpdateFilter(connID string, filter models.EntryFilter) error {
	if err := validateFilter(filter); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[connID]
	if !ok {
		return ErrUnknownSubscription
	}
	sub.filter = filter
	return nil
}

func (b *Broadcaster) Unsubscribe(connID string) {
	b.mu.Lock()
	delete(b.subs, connID)
	b.mu.Unlock()
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) onEntry(entry models.LogEntry) {
	event := events.Event{Type: events.TypeActivityLog, Payload: entry}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.Matches(entry) {
			continue
		}
		if err := sub.sender.Send(event); err != nil {
			b.log.Debug("live delivery failed", zap.String("conn_id", sub.id), zap.Error(err))
		}
	}
}

// NotifyAdmin delivers an operational alert to every connection,
// bypassing subscription filters.
func (b *Broadcaster) NotifyAdmin(notification models.AdminNotification) {
	event := events.Event{Type: events.TypeAdminNotification, Payload: notification}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if err := sub.sender.Send(event); err != nil {
			b.log.Debug("admin notification delivery failed", zap.String("conn_id", sub.id), zap.Error(err))
		}
	}
}

func validateFilter(filter models.EntryFilter) error {
	if filter.Category != "" && !filter.Category.Valid() {
		return fmt.Errorf("audit: invalid filter category %q", filter.Category)
	}
	for _, a := range filter.Actions {
		if a == "" {
			return errors.New("audit: filter actions must be non-empty strings")
		}
	}
	return nil
}
