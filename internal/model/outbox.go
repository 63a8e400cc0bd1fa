package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutboxStatus is the delivery state of an outbox event.
//
// Transitions within one processing attempt are monotonic:
// {PENDING|READY_TO_SEND|RETRY} -> PROCESSED on success, or -> RETRY on
// failure. FAILED is only ever set by the age-based cleanup sweep.
type OutboxStatus string

const (
	OutboxPending     OutboxStatus = "PENDING"
	OutboxReadyToSend OutboxStatus = "READY_TO_SEND"
	OutboxRetry       OutboxStatus = "RETRY"
	OutboxProcessed   OutboxStatus = "PROCESSED"
	OutboxFailed      OutboxStatus = "FAILED"
)

// EventAlertCreated is the only outbox event type the dispatcher acts on.
// Events carrying any other type are left untouched.
const EventAlertCreated = "ALERT_CREATED"

// OutboxEvent is one pending or processed delivery task.
//
// A row is created in the same transaction as its Notification (outbox
// pattern: https://microservices.io/patterns/data/transactional-outbox.html),
// so an alert can never exist without a dispatch task or vice versa.
type OutboxEvent struct {
	ID            int64        `db:"id" json:"id"`
	Type          string       `db:"type" json:"type"`
	Payload       string       `db:"payload" json:"payload"`
	Status        OutboxStatus `db:"status" json:"status"`
	RetryCount    int          `db:"retry_count" json:"retry_count"`
	NextAttemptAt time.Time    `db:"next_attempt_at" json:"next_attempt_at"`
	// ScheduledAt nil means the event is eligible for immediate dispatch.
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// OutboxPayload is the JSON document stored in OutboxEvent.Payload.
// This is the only bit-exact wire format in the subsystem: it must
// round-trip through the dispatcher's deserializer unchanged.
type OutboxPayload struct {
	NotificationID int64            `json:"notificationId"`
	UserID         int64            `json:"userId"`
	StockID        *int64           `json:"stockId,omitempty"`
	Type           NotificationType `json:"type,omitempty"`
	// ScheduledAt is the RFC3339 rendering of the delivery instant, or empty.
	ScheduledAt string `json:"scheduledAt,omitempty"`
	QuietPush   bool   `json:"quietPush,omitempty"`
}

// Encode serializes the payload for storage.
func (p OutboxPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal outbox payload: %w", err)
	}
	return string(data), nil
}

// ParseOutboxPayload deserializes a stored payload and validates the keys
// the dispatcher cannot work without. A zero notificationId or userId is a
// producer bug, not a transient condition, so it is reported as an error.
func ParseOutboxPayload(raw string) (OutboxPayload, error) {
	var p OutboxPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return OutboxPayload{}, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	if p.NotificationID == 0 {
		return OutboxPayload{}, fmt.Errorf("outbox payload missing notificationId: %s", raw)
	}
	if p.UserID == 0 {
		return OutboxPayload{}, fmt.Errorf("outbox payload missing userId: %s", raw)
	}
	return p, nil
}
