package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/partner-portal/backend/internal/audit"
	"github.com/partner-portal/backend/internal/http/dto"
	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// ActivityQuerier is the read path over the persisted store.
type ActivityQuerier interface {
	Query(ctx context.Context, f models.QueryFilter) ([]models.LogEntry, int64, error)
}

type AuditHandler struct {
	repo    ActivityQuerier
	sweeper *audit.Sweeper
	log     *zap.Logger
}

func NewAuditHandler(repo ActivityQuerier, sweeper *audit.Sweeper, log *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, sweeper: sweeper, log: log}
}

// QueryLogs returns one page of persisted entries matching the filters.
func (h *AuditHandler) QueryLogs(c *fiber.Ctx) error {
	filter, err := parseQueryFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	logs, total, err := h.repo.Query(c.Context(), filter)
	if err != nil {
		h.log.Error("audit query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "query failed"})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return c.JSON(dto.ActivityPage{Logs: logs, Total: total, Limit: limit, Offset: filter.Offset})
}

// ExportLogs streams the matching entries as CSV.
func (h *AuditHandler) ExportLogs(c *fiber.Ctx) error {
	filter, err := parseQueryFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if filter.Limit <= 0 {
		filter.Limit = 1000
	}

	logs, _, err := h.repo.Query(c.Context(), filter)
	if err != nil {
		h.log.Error("audit export failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "export failed"})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"id", "created_at", "actor_id", "tenant_id", "action", "category",
		"method", "endpoint", "resource_type", "resource_id",
		"ip_address", "duration_ms", "is_success", "error_code", "details",
	})
	for _, e := range logs {
		details := ""
		if e.Details != nil {
			if data, err := json.Marshal(e.Details); err == nil {
				details = string(data)
			}
		}
		_ = w.Write([]string{
			e.ID.String(), e.CreatedAt.Format(time.RFC3339), e.ActorID, e.TenantID,
			e.Action, string(e.Category), e.Method, e.Endpoint,
			e.ResourceType, e.ResourceID, e.IPAddress,
			strconv.FormatInt(e.DurationMs, 10), strconv.FormatBool(e.IsSuccess),
			e.ErrorCode, details,
		})
	}
	w.Flush()

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="activity_log.csv"`)
	return c.Send(buf.Bytes())
}

// Sweep triggers a manual retention sweep.
func (h *AuditHandler) Sweep(c *fiber.Ctx) error {
	deleted, err := h.sweeper.Sweep(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "sweep failed"})
	}
	return c.JSON(dto.SweepResponse{Deleted: deleted})
}

func parseQueryFilter(c *fiber.Ctx) (models.QueryFilter, error) {
	f := models.QueryFilter{
		ActorID:      c.Query("actor_id"),
		TenantID:     c.Query("tenant_id"),
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
		Limit:        c.QueryInt("limit", 50),
		Offset:       c.QueryInt("offset", 0),
	}

	if cat := c.Query("category"); cat != "" {
		category := models.Category(cat)
		if !category.Valid() {
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid category")
		}
		f.Category = category
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &t
	}

	return f, nil
}
