package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"stockpulse/internal/model"
)

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// The services depend on repository interfaces, so tests swap in mocks and
// never touch a database. The fake transaction runner below stands in for
// runTx: it hands the closure a nil *sqlx.Tx, which the mocks ignore.

type mockNotificationRepo struct {
	createFn        func(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error
	getByIDFn       func(ctx context.Context, id int64) (*model.Notification, error)
	listFn          func(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	unreadCountFn   func(ctx context.Context, userID int64) (int, error)
	updateContentFn func(ctx context.Context, id int64, title, body string) error

	created        []*model.Notification
	contentUpdates []contentUpdate
}

type contentUpdate struct {
	ID    int64
	Title string
	Body  string
}

func (m *mockNotificationRepo) Create(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, tx, n); err != nil {
			return err
		}
	} else {
		n.ID = int64(len(m.created) + 1)
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrNotificationNotFound
}

func (m *mockNotificationRepo) List(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	if m.unreadCountFn != nil {
		return m.unreadCountFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockNotificationRepo) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return nil
}

func (m *mockNotificationRepo) MarkAllAsRead(ctx context.Context, userID int64) error {
	return nil
}

func (m *mockNotificationRepo) UpdateContent(ctx context.Context, id int64, title, body string) error {
	m.contentUpdates = append(m.contentUpdates, contentUpdate{ID: id, Title: title, Body: body})
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, id, title, body)
	}
	return nil
}

type mockOutboxRepo struct {
	createFn       func(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error
	findPendingFn  func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error)
	updateStatusFn func(ctx context.Context, id int64, from, to model.OutboxStatus) (bool, error)

	created           []*model.OutboxEvent
	updateStatusCalls []outboxTransition
}

type outboxTransition struct {
	ID   int64
	From model.OutboxStatus
	To   model.OutboxStatus
}

func (m *mockOutboxRepo) Create(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, tx, e); err != nil {
			return err
		}
	} else {
		e.ID = int64(len(m.created) + 1)
	}
	m.created = append(m.created, e)
	return nil
}

func (m *mockOutboxRepo) GetByID(ctx context.Context, id int64) (*model.OutboxEvent, error) {
	return nil, errors.New("not implemented")
}

func (m *mockOutboxRepo) FindDispatchable(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error) {
	return nil, nil
}

func (m *mockOutboxRepo) FindScheduledDue(ctx context.Context, statuses []model.OutboxStatus, now time.Time, limit int) ([]model.OutboxEvent, error) {
	return nil, nil
}

func (m *mockOutboxRepo) FindRetryable(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
	return nil, nil
}

func (m *mockOutboxRepo) FindPendingScheduledBefore(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
	if m.findPendingFn != nil {
		return m.findPendingFn(ctx, now)
	}
	return nil, nil
}

func (m *mockOutboxRepo) UpdateStatus(ctx context.Context, id int64, from, to model.OutboxStatus) (bool, error) {
	m.updateStatusCalls = append(m.updateStatusCalls, outboxTransition{ID: id, From: from, To: to})
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, from, to)
	}
	return true, nil
}

func (m *mockOutboxRepo) MarkRetry(ctx context.Context, id int64, retryCount int, nextAttemptAt time.Time) error {
	return nil
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockOutboxRepo) MarkFailedRetryingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// newTestNotificationService builds a NotificationService on mocks with a
// pass-through transaction runner.
func newTestNotificationService(notifRepo *mockNotificationRepo, outboxRepo *mockOutboxRepo) *NotificationService {
	s := &NotificationService{
		notifRepo:  notifRepo,
		outboxRepo: outboxRepo,
	}
	s.runTx = func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return fn(nil)
	}
	return s
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestNotificationService_CreateImmediate_WritesBothRows(t *testing.T) {
	notifRepo := &mockNotificationRepo{}
	outboxRepo := &mockOutboxRepo{}
	svc := newTestNotificationService(notifRepo, outboxRepo)

	err := svc.CreateImmediate(context.Background(), 7, model.NotificationSystemMaintenance, "Maintenance", "Back at 02:00")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(notifRepo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifRepo.created))
	}
	if len(outboxRepo.created) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(outboxRepo.created))
	}

	event := outboxRepo.created[0]
	if event.Type != model.EventAlertCreated {
		t.Errorf("expected event type %s, got %s", model.EventAlertCreated, event.Type)
	}
	if event.Status != model.OutboxPending {
		t.Errorf("expected status PENDING, got %s", event.Status)
	}
	if event.ScheduledAt != nil {
		t.Errorf("immediate event must not carry scheduled_at, got %v", event.ScheduledAt)
	}

	payload, err := model.ParseOutboxPayload(event.Payload)
	if err != nil {
		t.Fatalf("payload does not round-trip: %v", err)
	}
	if payload.NotificationID != notifRepo.created[0].ID {
		t.Errorf("payload points at notification %d, row has %d", payload.NotificationID, notifRepo.created[0].ID)
	}
	if payload.UserID != 7 {
		t.Errorf("expected userId=7, got %d", payload.UserID)
	}
	if payload.ScheduledAt != "" {
		t.Errorf("expected empty scheduledAt, got %q", payload.ScheduledAt)
	}
}

func TestNotificationService_CreateScheduledStock_PayloadCarriesStockAndTime(t *testing.T) {
	notifRepo := &mockNotificationRepo{}
	outboxRepo := &mockOutboxRepo{}
	svc := newTestNotificationService(notifRepo, outboxRepo)

	stock := &model.Stock{ID: 900, Symbol: "005930", SymbolName: "Samsung Electronics"}
	scheduledAt := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	err := svc.CreateScheduledStock(context.Background(), 7, stock,
		model.NotificationScoreSpike, "title", "body", 50, 70, 20, scheduledAt)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	n := notifRepo.created[0]
	if n.StockID == nil || *n.StockID != 900 {
		t.Fatalf("expected notification stock 900, got %v", n.StockID)
	}
	if n.OldScore == nil || *n.OldScore != 50 || n.NewScore == nil || *n.NewScore != 70 {
		t.Errorf("score transition not stored: old=%v new=%v", n.OldScore, n.NewScore)
	}

	event := outboxRepo.created[0]
	if event.ScheduledAt == nil || !event.ScheduledAt.Equal(scheduledAt) {
		t.Errorf("expected event scheduled at %s, got %v", scheduledAt, event.ScheduledAt)
	}

	payload, _ := model.ParseOutboxPayload(event.Payload)
	if payload.StockID == nil || *payload.StockID != 900 {
		t.Errorf("expected payload stockId=900, got %v", payload.StockID)
	}
	if payload.Type != model.NotificationScoreSpike {
		t.Errorf("expected payload type SCORE_SPIKE, got %s", payload.Type)
	}
	if payload.ScheduledAt != "2025-06-03T00:00:00Z" {
		t.Errorf("expected RFC3339 UTC scheduledAt, got %q", payload.ScheduledAt)
	}
}

func TestNotificationService_Create_NotificationFailureSkipsOutbox(t *testing.T) {
	notifRepo := &mockNotificationRepo{
		createFn: func(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
			return errors.New("insert failed")
		},
	}
	outboxRepo := &mockOutboxRepo{}
	svc := newTestNotificationService(notifRepo, outboxRepo)

	err := svc.CreateImmediate(context.Background(), 7, model.NotificationDailySummary, "t", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(outboxRepo.created) != 0 {
		t.Errorf("outbox event must not be written when the notification insert fails, got %d", len(outboxRepo.created))
	}
}

func TestNotificationService_Create_OutboxFailureSurfaces(t *testing.T) {
	notifRepo := &mockNotificationRepo{}
	outboxRepo := &mockOutboxRepo{
		createFn: func(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error {
			return errors.New("insert failed")
		},
	}
	svc := newTestNotificationService(notifRepo, outboxRepo)

	err := svc.CreateImmediate(context.Background(), 7, model.NotificationDailySummary, "t", "b")
	if err == nil {
		t.Fatal("expected error so the transaction rolls back")
	}
}

func TestNotificationService_Create_RejectsMissingUser(t *testing.T) {
	svc := newTestNotificationService(&mockNotificationRepo{}, &mockOutboxRepo{})

	err := svc.CreateImmediate(context.Background(), 0, model.NotificationDailySummary, "t", "b")
	if err == nil || !strings.Contains(err.Error(), "user") {
		t.Fatalf("expected user validation error, got: %v", err)
	}
}

func TestNotificationService_CreateBulk_StopsOnFirstFailure(t *testing.T) {
	var failFrom int64 = 3
	notifRepo := &mockNotificationRepo{
		createFn: func(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
			if n.UserID == failFrom {
				return errors.New("insert failed")
			}
			n.ID = n.UserID
			return nil
		},
	}
	outboxRepo := &mockOutboxRepo{}
	svc := newTestNotificationService(notifRepo, outboxRepo)

	err := svc.CreateBulk(context.Background(), []int64{1, 2, 3, 4}, model.NotificationMarketOpen, "t", "b", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	// Users before the failure keep their notifications; later users were
	// never reached.
	if len(outboxRepo.created) != 2 {
		t.Errorf("expected 2 outbox events before the failure, got %d", len(outboxRepo.created))
	}
}

// =============================================================================
// READ-SIDE TESTS
// =============================================================================

func TestNotificationService_List_ClampsLimit(t *testing.T) {
	var gotLimit int
	notifRepo := &mockNotificationRepo{
		listFn: func(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
			gotLimit = limit
			return nil, nil
		},
		unreadCountFn: func(ctx context.Context, userID int64) (int, error) {
			return 4, nil
		},
	}
	svc := newTestNotificationService(notifRepo, &mockOutboxRepo{})

	cases := []struct {
		in   int
		want int
	}{
		{0, 20},
		{-5, 20},
		{30, 30},
		{200, 50},
	}
	for _, tc := range cases {
		resp, err := svc.List(context.Background(), 7, tc.in)
		if err != nil {
			t.Fatalf("List(%d): %v", tc.in, err)
		}
		if gotLimit != tc.want {
			t.Errorf("List(%d): expected limit %d, got %d", tc.in, tc.want, gotLimit)
		}
		if resp.UnreadCount != 4 {
			t.Errorf("List(%d): expected unread count 4, got %d", tc.in, resp.UnreadCount)
		}
	}
}
