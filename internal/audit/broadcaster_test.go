package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/partner-portal/backend/internal/events"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *fakeSender) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSender) received() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

func entryWith(tenant string, category models.Category, action string) models.LogEntry {
	return models.LogEntry{TenantID: tenant, Category: category, Action: action}
}

func TestBroadcasterFilters(t *testing.T) {
	tests := []struct {
		name    string
		filter  models.EntryFilter
		entry   models.LogEntry
		matches bool
	}{
		{"no filter matches all", models.EntryFilter{}, entryWith("t1", models.CategoryInfo, "LOGIN"), true},
		{"category match", models.EntryFilter{Category: models.CategoryCritical}, entryWith("t1", models.CategoryCritical, "LOGIN"), true},
		{"category mismatch", models.EntryFilter{Category: models.CategoryCritical}, entryWith("t1", models.CategoryWarning, "LOGIN"), false},
		{"tenant match", models.EntryFilter{TenantID: "t1"}, entryWith("t1", models.CategoryInfo, "LOGIN"), true},
		{"tenant mismatch", models.EntryFilter{TenantID: "t2"}, entryWith("t1", models.CategoryInfo, "LOGIN"), false},
		{"action membership", models.EntryFilter{Actions: []string{"LOGIN", "LOGOUT"}}, entryWith("t1", models.CategoryInfo, "LOGOUT"), true},
		{"action not in set", models.EntryFilter{Actions: []string{"LOGIN"}}, entryWith("t1", models.CategoryInfo, "DELETE_USER"), false},
		{
			"all predicates AND",
			models.EntryFilter{TenantID: "t1", Category: models.CategoryCritical, Actions: []string{"LOGIN"}},
			entryWith("t1", models.CategoryCritical, "LOGIN"),
			true,
		},
		{
			"one predicate fails",
			models.EntryFilter{TenantID: "t1", Category: models.CategoryCritical, Actions: []string{"LOGIN"}},
			entryWith("t1", models.CategoryInfo, "LOGIN"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroadcaster(zap.NewNop())
			sender := &fakeSender{}
			if err := b.Subscribe("conn-1", tt.filter, sender); err != nil {
				t.Fatalf("subscribe: %v", err)
			}

			b.onEntry(tt.entry)

			got := len(sender.received())
			if tt.matches && got != 1 {
				t.Errorf("received %d events, want 1", got)
			}
			if !tt.matches && got != 0 {
				t.Errorf("received %d events, want 0", got)
			}
		})
	}
}

func TestBroadcasterNoReplay(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	b.onEntry(entryWith("t1", models.CategoryCritical, "BEFORE"))

	sender := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{}, sender); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.onEntry(entryWith("t1", models.CategoryCritical, "AFTER"))

	got := sender.received()
	if len(got) != 1 {
		t.Fatalf("received %d events, want only the post-subscription entry", len(got))
	}
	entry, ok := got[0].Payload.(models.LogEntry)
	if !ok || entry.Action != "AFTER" {
		t.Errorf("received %v, want the AFTER entry", got[0].Payload)
	}
}

func TestBroadcasterCriticalFilterNeverLeaksLowerTiers(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	sender := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{Category: models.CategoryCritical}, sender); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.onEntry(entryWith("t1", models.CategoryWarning, "W"))
	b.onEntry(entryWith("t1", models.CategoryInfo, "I"))
	b.onEntry(entryWith("t1", models.CategoryCritical, "C"))

	got := sender.received()
	if len(got) != 1 {
		t.Fatalf("received %d events, want 1", len(got))
	}
	if entry := got[0].Payload.(models.LogEntry); entry.Category != models.CategoryCritical {
		t.Errorf("leaked a %s entry through a CRITICAL filter", entry.Category)
	}
}

func TestBroadcasterUpdateFilter(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	sender := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{Category: models.CategoryCritical}, sender); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.UpdateFilter("conn-1", models.EntryFilter{Category: models.CategoryWarning}); err != nil {
		t.Fatalf("update filter: %v", err)
	}

	b.onEntry(entryWith("t1", models.CategoryCritical, "C"))
	b.onEntry(entryWith("t1", models.CategoryWarning, "W"))

	got := sender.received()
	if len(got) != 1 {
		t.Fatalf("received %d events, want 1 after filter update", len(got))
	}

	if err := b.UpdateFilter("ghost", models.EntryFilter{}); err != ErrUnknownSubscription {
		t.Errorf("update of unknown subscription = %v, want ErrUnknownSubscription", err)
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	sender := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{}, sender); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Unsubscribe("conn-1")
	b.onEntry(entryWith("t1", models.CategoryCritical, "C"))

	if got := sender.received(); len(got) != 0 {
		t.Errorf("received %d events after unsubscribe, want 0", len(got))
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", b.Subscribers())
	}
}

func TestBroadcasterRejectsMalformedFilter(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	err := b.Subscribe("conn-1", models.EntryFilter{Category: "SEVERE"}, &fakeSender{})
	if err == nil {
		t.Error("invalid category accepted")
	}

	err = b.Subscribe("conn-1", models.EntryFilter{Actions: []string{"LOGIN", ""}}, &fakeSender{})
	if err == nil {
		t.Error("empty action accepted")
	}

	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0 after rejected subscribes", b.Subscribers())
	}
}

func TestBroadcasterNotifyAdminBypassesFilters(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	filtered := &fakeSender{}
	open := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{TenantID: "nobody"}, filtered); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("conn-2", models.EntryFilter{}, open); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.NotifyAdmin(models.AdminNotification{
		Level:   models.NotificationInfo,
		Message: "retention sweep removed 12 entries",
		Count:   12,
	})

	for name, s := range map[string]*fakeSender{"filtered": filtered, "open": open} {
		got := s.received()
		if len(got) != 1 {
			t.Errorf("%s subscriber received %d events, want 1", name, len(got))
			continue
		}
		if got[0].Type != events.TypeAdminNotification {
			t.Errorf("%s subscriber got type %s", name, got[0].Type)
		}
	}
}

func TestBroadcasterRunConsumesStream(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	sender := &fakeSender{}
	if err := b.Subscribe("conn-1", models.EntryFilter{}, sender); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	stream := make(chan models.LogEntry, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, stream)

	stream <- entryWith("t1", models.CategoryCritical, "ONE")
	stream <- entryWith("t1", models.CategoryWarning, "TWO")

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.received()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("received %d events, want 2", len(sender.received()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := sender.received()
	first := got[0].Payload.(models.LogEntry)
	second := got[1].Payload.(models.LogEntry)
	if first.Action != "ONE" || second.Action != "TWO" {
		t.Errorf("per-subscriber order lost: %s, %s", first.Action, second.Action)
	}
}
