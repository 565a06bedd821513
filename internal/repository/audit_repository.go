package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one row of the session audit trail. It never holds tokens.
type AuditEvent struct {
	ID         string
	Action     string
	SessionID  string
	UserID     string
	Reason     string
	Error      string
	OccurredAt time.Time
}

// AuditRepository persists session lifecycle events.
type AuditRepository interface {
	Insert(ctx context.Context, event *AuditEvent) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]AuditEvent, error)
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type auditRepository struct {
	db pgxQuerier
}

// NewAuditRepository constructs repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{db: pool}
}

func (r *auditRepository) Insert(ctx context.Context, event *AuditEvent) error {
	const query = `
        INSERT INTO auth_audit_events (id, action, session_id, user_id, reason, error, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.Action,
		event.SessionID,
		event.UserID,
		event.Reason,
		event.Error,
		event.OccurredAt,
	)
	return err
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, action, session_id, user_id, reason, error, occurred_at
        FROM auth_audit_events WHERE session_id=$1
        ORDER BY occurred_at ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEvent, error) {
		var e AuditEvent
		err := row.Scan(&e.ID, &e.Action, &e.SessionID, &e.UserID, &e.Reason, &e.Error, &e.OccurredAt)
		return e, err
	})
}
