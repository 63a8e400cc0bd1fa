package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
)

type NotificationRepository interface {
	// Create inserts a notification and fills in the generated ID.
	// When tx is non-nil the insert joins that transaction.
	Create(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error
	GetByID(ctx context.Context, id int64) (*model.Notification, error)
	List(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	GetUnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
	// UpdateContent rewrites title/body; used by the daily aggregation sweep.
	UpdateContent(ctx context.Context, id int64, title, body string) error
}

type OutboxRepository interface {
	// Create inserts an outbox event and fills in the generated ID.
	// When tx is non-nil the insert joins that transaction.
	Create(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error
	GetByID(ctx context.Context, id int64) (*model.OutboxEvent, error)
	// FindDispatchable returns events in the given statuses whose scheduled_at
	// is null or due, oldest first, up to limit.
	FindDispatchable(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error)
	// FindScheduledDue is like FindDispatchable but only matches events that
	// actually carry a due scheduled_at.
	FindScheduledDue(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error)
	// FindRetryable returns RETRY events whose next_attempt_at is due.
	FindRetryable(ctx context.Context, now time.Time) ([]model.OutboxEvent, error)
	// FindPendingScheduledBefore returns PENDING events with scheduled_at <= now.
	FindPendingScheduledBefore(ctx context.Context, now time.Time) ([]model.OutboxEvent, error)
	// UpdateStatus performs a compare-and-set transition and reports whether
	// the row was still in the expected status.
	UpdateStatus(ctx context.Context, id int64, from, to model.OutboxStatus) (bool, error)
	// MarkRetry records a failed attempt: bumps retry_count, pushes
	// next_attempt_at, sets status RETRY.
	MarkRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	MarkFailedRetryingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeviceTokenRepository interface {
	FindActiveTokens(ctx context.Context, userID int64) ([]string, error)
	// FindAllByToken returns every row sharing the token string, active or
	// not. More than one row means the unique constraint was bypassed.
	FindAllByToken(ctx context.Context, token string) ([]model.DeviceToken, error)
	Insert(ctx context.Context, t *model.DeviceToken) error
	// Reassign moves an existing row to a new owner/platform and reactivates it.
	Reassign(ctx context.Context, id, userID int64, platform string) error
	DeactivateByID(ctx context.Context, id int64) error
	// Deactivate marks the row holding the token inactive, whoever owns it.
	Deactivate(ctx context.Context, token string) error
	// DeactivateForUser only touches the row if the given user owns it.
	DeactivateForUser(ctx context.Context, token string, userID int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	FindActiveUsers(ctx context.Context) ([]model.User, error)
}

type StockRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Stock, error)
	// FindNotifiableUsers returns users who bookmarked the stock with
	// notifications enabled.
	FindNotifiableUsers(ctx context.Context, stockID int64) ([]model.User, error)
}
