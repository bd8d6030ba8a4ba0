package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partner-portal/backend/internal/models"
)

const insertEntrySQL = `
	INSERT INTO activity_log (
		id, actor_id, tenant_id, action, category, method, endpoint,
		resource_type, resource_id, details, ip_address, user_agent,
		duration_ms, is_success, error_code, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO NOTHING
`

// ActivityRepo persists audit entries. Inserts are keyed on the entry ID,
// so a batch replayed after a transient failure cannot double-count.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

// BulkInsert writes one batch of entries in a single round-trip.
func (r *ActivityRepo) BulkInsert(ctx context.Context, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertEntrySQL,
			e.ID, e.ActorID, e.TenantID, e.Action, e.Category, e.Method, e.Endpoint,
			nullable(e.ResourceType), nullable(e.ResourceID), e.Details,
			e.IPAddress, e.UserAgent, e.DurationMs, e.IsSuccess,
			nullable(e.ErrorCode), e.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
	}
	return results.Close()
}

// DeleteOlderThan removes every entry created strictly before the cutoff
// and returns the number removed.
func (r *ActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Query returns one page of entries matching the filter, newest first,
// plus the total match count for pagination.
func (r *ActivityRepo) Query(ctx context.Context, f models.QueryFilter) ([]models.LogEntry, int64, error) {
	where, args := buildWhere(f)

	var total int64
	countSQL := "SELECT count(*) FROM activity_log" + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	querySQL := fmt.Sprintf(`
		SELECT id, actor_id, tenant_id, action, category, method, endpoint,
			coalesce(resource_type, ''), coalesce(resource_id, ''), details,
			ip_address, user_agent, duration_ms, is_success,
			coalesce(error_code, ''), created_at
		FROM activity_log%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.TenantID, &e.Action, &e.Category, &e.Method, &e.Endpoint,
			&e.ResourceType, &e.ResourceID, &e.Details,
			&e.IPAddress, &e.UserAgent, &e.DurationMs, &e.IsSuccess,
			&e.ErrorCode, &e.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func buildWhere(f models.QueryFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
