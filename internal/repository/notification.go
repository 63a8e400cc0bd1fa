package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stockpulse/internal/model"
)

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create inserts a new notification and fills in the generated ID.
func (r *notificationRepository) Create(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
	query := `
		INSERT INTO notifications (user_id, stock_id, type, old_score, new_score, change_abs, title, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_read, created_at
	`
	row := ext(r.db, tx).QueryRowxContext(ctx, query,
		n.UserID, n.StockID, n.Type, n.OldScore, n.NewScore, n.ChangeAbs, n.Title, n.Body)
	if err := row.Scan(&n.ID, &n.IsRead, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID loads a single notification.
func (r *notificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	query := `
		SELECT id, user_id, stock_id, type, old_score, new_score, change_abs, title, body, is_read, created_at
		FROM notifications
		WHERE id = $1
	`
	var n model.Notification
	err := r.db.GetContext(ctx, &n, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// List returns a user's notifications, newest first.
func (r *notificationRepository) List(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, user_id, stock_id, type, old_score, new_score, change_abs, title, body, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var notifications []model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// GetUnreadCount returns the number of unread notifications for badge display.
func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return count, nil
}

// MarkAsRead marks specific notifications as read.
// The user_id filter prevents marking someone else's notifications.
func (r *notificationRepository) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	query := `
		UPDATE notifications
		SET is_read = true
		WHERE user_id = $1 AND id = ANY($2)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, pq.Array(notificationIDs)); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks every notification of a user as read.
func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID int64) error {
	query := `UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// UpdateContent rewrites the title/body of an existing notification.
func (r *notificationRepository) UpdateContent(ctx context.Context, id int64, title, body string) error {
	query := `UPDATE notifications SET title = $2, body = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, body); err != nil {
		return fmt.Errorf("update notification content: %w", err)
	}
	return nil
}
