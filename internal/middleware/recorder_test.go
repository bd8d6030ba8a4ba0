package middleware

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/partner-portal/backend/internal/audit"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

type captureStore struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (s *captureStore) BulkInsert(ctx context.Context, entries []models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *captureStore) all() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func newTestApp(store *captureStore) *fiber.App {
	w := audit.NewWriter(store, 1, time.Hour, 16, zap.NewNop())
	rec := audit.NewRecorder(audit.NewClassifier(false), w, zap.NewNop())

	app := fiber.New()
	app.Use(AuditRecorder(rec))

	app.Post("/api/auth/partner/login", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	})
	app.Delete("/api/v1/partner/users/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func TestAuditRecorderRecordsFailedLogin(t *testing.T) {
	store := &captureStore{}
	app := newTestApp(store)

	req := httptest.NewRequest("POST", "/api/auth/partner/login",
		strings.NewReader(`{"email":"ops@example.com","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dashboard/1.0")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	got := store.all()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}

	e := got[0]
	if e.Category != models.CategoryCritical || e.Action != "LOGIN" {
		t.Errorf("classified as %s/%s, want CRITICAL/LOGIN", e.Category, e.Action)
	}
	if e.ActorID != models.ActorAnonymous {
		t.Errorf("actor = %s, want anonymous before authentication", e.ActorID)
	}
	if e.IsSuccess {
		t.Error("failed login recorded as success")
	}
	if e.Details["password"] != audit.RedactedValue {
		t.Errorf("password leaked: %v", e.Details["password"])
	}
	if e.UserAgent != "dashboard/1.0" {
		t.Errorf("user agent = %q", e.UserAgent)
	}
}

func TestAuditRecorderExtractsResource(t *testing.T) {
	store := &captureStore{}
	app := newTestApp(store)

	req := httptest.NewRequest("DELETE", "/api/v1/partner/users/0f8fad5b-d9cb-469f-a165-70867728950e", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	got := store.all()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}

	e := got[0]
	if e.Action != "DELETE_USER" {
		t.Errorf("action = %s, want DELETE_USER", e.Action)
	}
	if e.ResourceType != "user" || e.ResourceID != "0f8fad5b-d9cb-469f-a165-70867728950e" {
		t.Errorf("resource = %s/%s", e.ResourceType, e.ResourceID)
	}
	if !e.IsSuccess {
		t.Error("204 recorded as failure")
	}
}

func TestAuditRecorderNeverFailsTheRequest(t *testing.T) {
	store := &captureStore{}
	app := newTestApp(store)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := store.all(); len(got) != 0 {
		t.Errorf("health check recorded %d entries, want drop", len(got))
	}
}
