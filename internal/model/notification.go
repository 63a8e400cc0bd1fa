package model

import (
	"errors"
	"time"
)

// NotificationType is a closed set of notification categories.
// The string value is what gets persisted and what rides in outbox payloads,
// so renaming a constant is a data migration.
type NotificationType string

const (
	NotificationScoreSpike          NotificationType = "SCORE_SPIKE"
	NotificationSubscriptionStarted NotificationType = "SUBSCRIPTION_STARTED"
	NotificationSubscriptionStopped NotificationType = "SUBSCRIPTION_STOPPED"
	NotificationDailySummary        NotificationType = "DAILY_SUMMARY"
	NotificationMarketOpen          NotificationType = "MARKET_OPEN"
	NotificationMarketClose         NotificationType = "MARKET_CLOSE"
	NotificationSystemMaintenance   NotificationType = "SYSTEM_MAINTENANCE"
)

// Notification represents a single user-facing notification record.
// Rows are immutable after insert except for the is_read flag, which the
// read API flips. Score fields are only set for stock-related types.
type Notification struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"-"`
	StockID   *int64           `db:"stock_id" json:"stock_id,omitempty"`
	Type      NotificationType `db:"type" json:"type"`
	OldScore  *int             `db:"old_score" json:"old_score,omitempty"`
	NewScore  *int             `db:"new_score" json:"new_score,omitempty"`
	ChangeAbs *int             `db:"change_abs" json:"change_abs,omitempty"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationListResponse is the notification list payload for the HTTP layer.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// MarkReadRequest is the request body for marking notifications as read.
type MarkReadRequest struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

// ErrNotificationNotFound is returned when a notification row referenced
// by an outbox payload no longer exists.
var ErrNotificationNotFound = errors.New("notification not found")
