package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stockpulse/internal/model"
)

const outboxColumns = `id, type, payload, status, retry_count, next_attempt_at, scheduled_at, created_at`

type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

// Create inserts a new outbox event and fills in the generated ID.
func (r *outboxRepository) Create(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error {
	if e.Status == "" {
		e.Status = model.OutboxPending
	}
	query := `
		INSERT INTO outbox_events (type, payload, status, scheduled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, retry_count, next_attempt_at, created_at
	`
	row := ext(r.db, tx).QueryRowxContext(ctx, query, e.Type, e.Payload, e.Status, e.ScheduledAt)
	if err := row.Scan(&e.ID, &e.RetryCount, &e.NextAttemptAt, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetByID(ctx context.Context, id int64) (*model.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1`
	var e model.OutboxEvent
	err := r.db.GetContext(ctx, &e, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outbox event %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	return &e, nil
}

// FindDispatchable returns events in the given statuses that are eligible
// right now: no scheduled_at, or one that has passed. Oldest first so a
// backlog drains in creation order.
func (r *outboxRepository) FindDispatchable(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = ANY($1) AND (scheduled_at IS NULL OR scheduled_at <= $2)
		ORDER BY created_at ASC
		LIMIT $3
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, statusArray(statuses), now, limit); err != nil {
		return nil, fmt.Errorf("find dispatchable events: %w", err)
	}
	return events, nil
}

// FindScheduledDue returns events in the given statuses whose scheduled_at
// has passed. Unlike FindDispatchable it skips unscheduled events.
func (r *outboxRepository) FindScheduledDue(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = ANY($1) AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, statusArray(statuses), now, limit); err != nil {
		return nil, fmt.Errorf("find scheduled events: %w", err)
	}
	return events, nil
}

// FindRetryable returns RETRY events whose backoff window has elapsed.
func (r *outboxRepository) FindRetryable(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, model.OutboxRetry, now); err != nil {
		return nil, fmt.Errorf("find retryable events: %w", err)
	}
	return events, nil
}

// FindPendingScheduledBefore returns PENDING events whose scheduled delivery
// time has arrived. Used by the daily alert sweep.
func (r *outboxRepository) FindPendingScheduledBefore(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY created_at ASC
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, model.OutboxPending, now); err != nil {
		return nil, fmt.Errorf("find pending scheduled events: %w", err)
	}
	return events, nil
}

// UpdateStatus transitions an event from one status to another.
// The WHERE clause doubles as a claim: if a concurrent loop already moved
// the row, zero rows match and the caller learns it lost the race.
func (r *outboxRepository) UpdateStatus(ctx context.Context, id int64, from, to model.OutboxStatus) (bool, error) {
	query := `UPDATE outbox_events SET status = $3 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update outbox status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update outbox status rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkRetry records a failed delivery attempt.
func (r *outboxRepository) MarkRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = $2, retry_count = $3, next_attempt_at = $4
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, model.OutboxRetry, retryCount, nextAttemptAt); err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	return nil
}

// DeleteProcessedBefore removes PROCESSED events older than the cutoff.
func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox_events WHERE status = $1 AND created_at < $2`
	res, err := r.db.ExecContext(ctx, query, model.OutboxProcessed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete processed events rows affected: %w", err)
	}
	return deleted, nil
}

// MarkFailedRetryingBefore abandons RETRY events older than the cutoff.
// FAILED rows are kept for inspection, never deleted here.
func (r *outboxRepository) MarkFailedRetryingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE outbox_events SET status = $1 WHERE status = $2 AND created_at < $3`
	res, err := r.db.ExecContext(ctx, query, model.OutboxFailed, model.OutboxRetry, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale retries failed: %w", err)
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark stale retries rows affected: %w", err)
	}
	return marked, nil
}

// statusArray converts statuses for a Postgres ANY() clause.
func statusArray(statuses []model.OutboxStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}
