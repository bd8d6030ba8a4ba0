package models

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryCritical Category = "CRITICAL"
	CategoryWarning  Category = "WARNING"
	CategoryInfo     Category = "INFO"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCritical, CategoryWarning, CategoryInfo:
		return true
	}
	return false
}

// ActorAnonymous marks pre-authentication activity (e.g. failed logins).
const ActorAnonymous = "anonymous"

// LogEntry is one classified audit record. Entries are immutable once
// created; the store is append-only. ID doubles as the idempotency key,
// so a batch retried after a transient insert failure cannot double-count.
type LogEntry struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      string         `json:"actor_id"`
	TenantID     string         `json:"tenant_id"`
	Action       string         `json:"action"`
	Category     Category       `json:"category"`
	Method       string         `json:"method"`
	Endpoint     string         `json:"endpoint"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	IsSuccess    bool           `json:"is_success"`
	ErrorCode    string         `json:"error_code,omitempty"`
	CreatedAt    time.Time      `json:"created_at"` // assigned at flush, not at classification
}

// EntryFilter is a live-subscription predicate. Absent fields match
// everything; set fields must all match (AND semantics).
type EntryFilter struct {
	TenantID string   `json:"tenant_id,omitempty"`
	Category Category `json:"category,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

func (f EntryFilter) Matches(e LogEntry) bool {
	if f.TenantID != "" && f.TenantID != e.TenantID {
		return false
	}
	if f.Category != "" && f.Category != e.Category {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// QueryFilter narrows administrative queries over the persisted store.
type QueryFilter struct {
	ActorID      string
	TenantID     string
	Category     Category
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type NotificationLevel string

const (
	NotificationInfo     NotificationLevel = "info"
	NotificationCritical NotificationLevel = "critical"
)

// AdminNotification is an operational alert pushed to every live
// dashboard connection regardless of subscription filters.
type AdminNotification struct {
	Level      NotificationLevel `json:"level"`
	Message    string            `json:"message"`
	Count      int64             `json:"count,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
