package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
	"stockpulse/internal/repository"
)

// NotificationService creates notifications together with their outbox
// dispatch tasks, and serves the read-side API (list, unread count, mark
// read) for the HTTP layer.
//
// The write path is the outbox pattern: the notification row and its
// outbox event are inserted in one transaction, so a notification can
// never exist without a delivery task and a task can never point at a
// notification that was rolled back.
type NotificationService struct {
	notifRepo  repository.NotificationRepository
	outboxRepo repository.OutboxRepository

	// runTx executes fn inside a database transaction. Kept as a field so
	// unit tests can substitute a fake transaction runner.
	runTx func(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

func NewNotificationService(
	db *sqlx.DB,
	notifRepo repository.NotificationRepository,
	outboxRepo repository.OutboxRepository,
) *NotificationService {
	s := &NotificationService{
		notifRepo:  notifRepo,
		outboxRepo: outboxRepo,
	}
	s.runTx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("[NotificationService] rollback failed: %v", rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	}
	return s
}

// CreateImmediate creates a notification dispatched on the next immediate
// polling cycle.
func (s *NotificationService) CreateImmediate(ctx context.Context, userID int64, notifType model.NotificationType, title, body string) error {
	return s.create(ctx, createParams{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
	})
}

// CreateScheduled creates a notification held back until scheduledAt.
func (s *NotificationService) CreateScheduled(ctx context.Context, userID int64, notifType model.NotificationType, title, body string, scheduledAt time.Time) error {
	return s.create(ctx, createParams{
		UserID:      userID,
		Type:        notifType,
		Title:       title,
		Body:        body,
		ScheduledAt: &scheduledAt,
	})
}

// CreateImmediateStock creates a stock-related notification carrying the
// score transition, dispatched immediately.
func (s *NotificationService) CreateImmediateStock(ctx context.Context, userID int64, stock *model.Stock, notifType model.NotificationType, title, body string, oldScore, newScore, changeAbs int) error {
	return s.create(ctx, createParams{
		UserID:    userID,
		Stock:     stock,
		Type:      notifType,
		Title:     title,
		Body:      body,
		OldScore:  &oldScore,
		NewScore:  &newScore,
		ChangeAbs: &changeAbs,
	})
}

// CreateScheduledStock creates a stock-related notification held back until
// scheduledAt. This is the variant the score alert trigger uses.
func (s *NotificationService) CreateScheduledStock(ctx context.Context, userID int64, stock *model.Stock, notifType model.NotificationType, title, body string, oldScore, newScore, changeAbs int, scheduledAt time.Time) error {
	return s.create(ctx, createParams{
		UserID:      userID,
		Stock:       stock,
		Type:        notifType,
		Title:       title,
		Body:        body,
		OldScore:    &oldScore,
		NewScore:    &newScore,
		ChangeAbs:   &changeAbs,
		ScheduledAt: &scheduledAt,
	})
}

// CreateBulk creates one notification per user. Each user's
// notification+outbox pair is atomic; the batch as a whole is not, so a
// failure mid-batch leaves earlier users fully notified and later ones
// untouched.
func (s *NotificationService) CreateBulk(ctx context.Context, userIDs []int64, notifType model.NotificationType, title, body string, scheduledAt *time.Time) error {
	for _, userID := range userIDs {
		err := s.create(ctx, createParams{
			UserID:      userID,
			Type:        notifType,
			Title:       title,
			Body:        body,
			ScheduledAt: scheduledAt,
		})
		if err != nil {
			return fmt.Errorf("bulk notification for user %d: %w", userID, err)
		}
	}
	return nil
}

type createParams struct {
	UserID      int64
	Stock       *model.Stock
	Type        model.NotificationType
	Title       string
	Body        string
	OldScore    *int
	NewScore    *int
	ChangeAbs   *int
	ScheduledAt *time.Time
}

// create persists the notification and enqueues its ALERT_CREATED outbox
// event in one transaction.
func (s *NotificationService) create(ctx context.Context, p createParams) error {
	if p.UserID == 0 {
		return fmt.Errorf("notification requires a user")
	}

	return s.runTx(ctx, func(tx *sqlx.Tx) error {
		n := &model.Notification{
			UserID:    p.UserID,
			Type:      p.Type,
			OldScore:  p.OldScore,
			NewScore:  p.NewScore,
			ChangeAbs: p.ChangeAbs,
			Title:     p.Title,
			Body:      p.Body,
		}
		if p.Stock != nil {
			n.StockID = &p.Stock.ID
		}

		if err := s.notifRepo.Create(ctx, tx, n); err != nil {
			return err
		}

		payload := model.OutboxPayload{
			NotificationID: n.ID,
			UserID:         p.UserID,
			StockID:        n.StockID,
			Type:           p.Type,
		}
		if p.ScheduledAt != nil {
			payload.ScheduledAt = p.ScheduledAt.UTC().Format(time.RFC3339)
		}

		raw, err := payload.Encode()
		if err != nil {
			return err
		}

		event := &model.OutboxEvent{
			Type:        model.EventAlertCreated,
			Payload:     raw,
			Status:      model.OutboxPending,
			ScheduledAt: p.ScheduledAt,
		}
		return s.outboxRepo.Create(ctx, tx, event)
	})
}

// List returns a user's notifications plus the unread count for badges.
func (s *NotificationService) List(ctx context.Context, userID int64, limit int) (*model.NotificationListResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	notifications, err := s.notifRepo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// MarkAsRead marks specific notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return s.notifRepo.MarkAsRead(ctx, userID, notificationIDs)
}

// MarkAllAsRead marks all notifications for a user as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the number of unread notifications.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.notifRepo.GetUnreadCount(ctx, userID)
}
