package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/audit-trail/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Log persists one audit event with its per-field deltas in a single
// transaction and returns the new event id.
func (r *AuditRepo) Log(ctx context.Context, event models.AuditEvent, deltas []models.AuditDelta) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO audits (created, model, event, entity_id, source_ip, source_url, source_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, event.Created, event.Model, event.Event, event.EntityID,
		event.SourceIP, event.SourceURL, event.SourceUserID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}

	for _, d := range deltas {
		_, err := tx.Exec(ctx, `
			INSERT INTO audit_deltas (audit_id, property, old_value, new_value)
			VALUES ($1, $2, $3, $4)
		`, id, d.Property, d.OldValue, d.NewValue)
		if err != nil {
			return 0, fmt.Errorf("insert audit delta %q: %w", d.Property, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// ListByEntity returns the audit events recorded for one entity, newest first.
func (r *AuditRepo) ListByEntity(ctx context.Context, model, entityID string, limit, offset int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, created, model, event, entity_id, source_ip, source_url, source_user_id
		FROM audits WHERE model = $1 AND entity_id = $2
		ORDER BY id DESC LIMIT $3 OFFSET $4
	`, model, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.Created, &e.Model, &e.Event, &e.EntityID,
			&e.SourceIP, &e.SourceURL, &e.SourceUserID); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListDeltas returns the changed-field rows of one audit event.
func (r *AuditRepo) ListDeltas(ctx context.Context, auditID int64) ([]models.AuditDelta, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, audit_id, property, old_value, new_value
		FROM audit_deltas WHERE audit_id = $1 ORDER BY id
	`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deltas []models.AuditDelta
	for rows.Next() {
		var d models.AuditDelta
		if err := rows.Scan(&d.ID, &d.AuditID, &d.Property, &d.OldValue, &d.NewValue); err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

// DeltaQuery selects the slice of history a backfill run covers. The date
// range is inclusive on both ends, day-granular. Both model filters apply
// when both are set: the include list first, exclusions subtracted after.
type DeltaQuery struct {
	From          time.Time
	Until         time.Time
	Models        []string
	ExcludeModels []string
}

// StreamDeltas runs the joined audits x audit_deltas query ordered by event
// id then delta id, invoking fn once per row. Rows are consumed as they
// arrive from the server; only the driver's read buffer is held in memory.
// An error returned by fn stops the stream and is returned unchanged.
//
// The created column is legacy free-form text, so the range filter compares
// "YYYY-MM-DD HH:MM:SS" strings, which order the same as the timestamps.
func (r *AuditRepo) StreamDeltas(ctx context.Context, q DeltaQuery, fn func(models.DeltaRow) error) error {
	var sb strings.Builder
	sb.WriteString(`
		SELECT a.id, a.created, a.model, a.event, a.entity_id,
		       a.source_ip, a.source_url, a.source_user_id,
		       d.id, d.property, d.old_value, d.new_value
		FROM audits a
		JOIN audit_deltas d ON d.audit_id = a.id
		WHERE a.created >= $1 AND a.created <= $2
	`)
	args := []any{
		q.From.Format("2006-01-02") + " 00:00:00",
		q.Until.Format("2006-01-02") + " 23:59:59",
	}

	if len(q.Models) > 0 {
		args = append(args, q.Models)
		fmt.Fprintf(&sb, " AND a.model = ANY($%d)", len(args))
	}
	if len(q.ExcludeModels) > 0 {
		args = append(args, q.ExcludeModels)
		fmt.Fprintf(&sb, " AND NOT (a.model = ANY($%d))", len(args))
	}
	sb.WriteString(" ORDER BY a.id, d.id")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("query audit deltas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row models.DeltaRow
		err := rows.Scan(
			&row.Event.ID, &row.Event.Created, &row.Event.Model, &row.Event.Event,
			&row.Event.EntityID, &row.Event.SourceIP, &row.Event.SourceURL, &row.Event.SourceUserID,
			&row.Delta.ID, &row.Delta.Property, &row.Delta.OldValue, &row.Delta.NewValue,
		)
		if err != nil {
			return fmt.Errorf("scan audit delta row: %w", err)
		}
		row.Delta.AuditID = row.Event.ID
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
