package service

import (
	"context"
	"testing"
	"time"

	"stockpulse/internal/model"
)

type mockStockRepo struct {
	getByIDFn             func(ctx context.Context, id int64) (*model.Stock, error)
	findNotifiableUsersFn func(ctx context.Context, stockID int64) ([]model.User, error)
}

func (m *mockStockRepo) GetByID(ctx context.Context, id int64) (*model.Stock, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrStockNotFound
}

func (m *mockStockRepo) FindNotifiableUsers(ctx context.Context, stockID int64) ([]model.User, error) {
	if m.findNotifiableUsersFn != nil {
		return m.findNotifiableUsersFn(ctx, stockID)
	}
	return nil, nil
}

// alertFixture bundles the service under test with the mocks behind it.
type alertFixture struct {
	svc        *StockScoreAlertService
	notifRepo  *mockNotificationRepo
	outboxRepo *mockOutboxRepo
	stockRepo  *mockStockRepo
}

// newAlertFixture pins the clock to the given instant (UTC schedule, alert
// hour 09:00) and wires a real NotificationService on top of the mocks so
// created payloads are the genuine article.
func newAlertFixture(now time.Time) *alertFixture {
	notifRepo := &mockNotificationRepo{}
	outboxRepo := &mockOutboxRepo{}
	stockRepo := &mockStockRepo{
		getByIDFn: func(ctx context.Context, id int64) (*model.Stock, error) {
			return &model.Stock{ID: id, Symbol: "005930", SymbolName: "Samsung Electronics"}, nil
		},
		findNotifiableUsersFn: func(ctx context.Context, stockID int64) ([]model.User, error) {
			return []model.User{{ID: 7}, {ID: 8}}, nil
		},
	}

	notifService := newTestNotificationService(notifRepo, outboxRepo)
	svc := NewStockScoreAlertService(notifService, notifRepo, outboxRepo, stockRepo,
		DefaultScoreAlertThreshold, 9, time.UTC)
	svc.now = func() time.Time { return now }

	return &alertFixture{
		svc:        svc,
		notifRepo:  notifRepo,
		outboxRepo: outboxRepo,
		stockRepo:  stockRepo,
	}
}

// =============================================================================
// SCORE CHANGE TESTS
// =============================================================================

func TestOnScoreChanged_BelowThresholdIsNoop(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	if err := f.svc.OnScoreChanged(context.Background(), 900, 50, 64); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(f.notifRepo.created) != 0 {
		t.Errorf("a 14-point move must not alert, got %d notifications", len(f.notifRepo.created))
	}
}

func TestOnScoreChanged_AtThresholdAlertsEveryBookmarker(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	if err := f.svc.OnScoreChanged(context.Background(), 900, 50, 65); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(f.notifRepo.created) != 2 {
		t.Fatalf("expected one notification per bookmarker, got %d", len(f.notifRepo.created))
	}
	n := f.notifRepo.created[0]
	if n.Type != model.NotificationScoreSpike {
		t.Errorf("expected SCORE_SPIKE, got %s", n.Type)
	}
	if n.Title != "Samsung Electronics score alert: 50 -> 65" {
		t.Errorf("unexpected title: %q", n.Title)
	}
	if n.Body != "A stock you bookmarked moved 15p." {
		t.Errorf("unexpected body: %q", n.Body)
	}
}

func TestOnScoreChanged_DownwardMoveCounts(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	if err := f.svc.OnScoreChanged(context.Background(), 900, 70, 50); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(f.notifRepo.created) != 2 {
		t.Fatalf("expected alerts for a 20-point drop, got %d", len(f.notifRepo.created))
	}
	if f.notifRepo.created[0].Body != "A stock you bookmarked moved 20p." {
		t.Errorf("unexpected body: %q", f.notifRepo.created[0].Body)
	}
}

func TestOnScoreChanged_NoBookmarkersIsNoop(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))
	f.stockRepo.findNotifiableUsersFn = func(ctx context.Context, stockID int64) ([]model.User, error) {
		return nil, nil
	}

	if err := f.svc.OnScoreChanged(context.Background(), 900, 0, 100); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(f.notifRepo.created) != 0 {
		t.Errorf("expected no notifications without bookmarkers, got %d", len(f.notifRepo.created))
	}
}

func TestOnScoreChanged_BeforeAlertHourSchedulesToday(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	if err := f.svc.OnScoreChanged(context.Background(), 900, 50, 70); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	event := f.outboxRepo.created[0]
	if event.ScheduledAt == nil || !event.ScheduledAt.Equal(want) {
		t.Errorf("expected delivery at today 09:00, got %v", event.ScheduledAt)
	}
}

func TestOnScoreChanged_AfterAlertHourSchedulesTomorrow(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))

	if err := f.svc.OnScoreChanged(context.Background(), 900, 50, 70); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	event := f.outboxRepo.created[0]
	if event.ScheduledAt == nil || !event.ScheduledAt.Equal(want) {
		t.Errorf("expected delivery at tomorrow 09:00, got %v", event.ScheduledAt)
	}
}

// =============================================================================
// DAILY PREPARATION TESTS
// =============================================================================

func pendingSpike(id, userID, notificationID int64) model.OutboxEvent {
	payload, _ := model.OutboxPayload{
		NotificationID: notificationID,
		UserID:         userID,
		Type:           model.NotificationScoreSpike,
	}.Encode()
	return model.OutboxEvent{
		ID:      id,
		Type:    model.EventAlertCreated,
		Payload: payload,
		Status:  model.OutboxPending,
	}
}

func transitionsOf(calls []outboxTransition, to model.OutboxStatus) []int64 {
	var ids []int64
	for _, c := range calls {
		if c.To == to {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func TestPrepareDailyAlerts_PromotesSingleSpike(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	f.outboxRepo.findPendingFn = func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
		return []model.OutboxEvent{pendingSpike(1, 7, 41)}, nil
	}

	if err := f.svc.PrepareDailyAlerts(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	promoted := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxReadyToSend)
	if len(promoted) != 1 || promoted[0] != 1 {
		t.Errorf("expected event 1 promoted, got %v", promoted)
	}
	if len(f.notifRepo.contentUpdates) != 0 {
		t.Errorf("a single alert must keep its text, got %+v", f.notifRepo.contentUpdates)
	}
}

func TestPrepareDailyAlerts_RollsUpBurstPerUser(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	f.outboxRepo.findPendingFn = func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
		return []model.OutboxEvent{
			pendingSpike(1, 7, 41),
			pendingSpike(2, 7, 42),
			pendingSpike(3, 7, 43),
		}, nil
	}

	if err := f.svc.PrepareDailyAlerts(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	promoted := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxReadyToSend)
	if len(promoted) != 1 || promoted[0] != 1 {
		t.Fatalf("expected only the representative promoted, got %v", promoted)
	}

	suppressed := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxProcessed)
	if len(suppressed) != 2 {
		t.Fatalf("expected 2 suppressed events, got %v", suppressed)
	}

	if len(f.notifRepo.contentUpdates) != 1 {
		t.Fatalf("expected one roll-up rewrite, got %d", len(f.notifRepo.contentUpdates))
	}
	update := f.notifRepo.contentUpdates[0]
	if update.ID != 41 {
		t.Errorf("expected the representative notification rewritten, got %d", update.ID)
	}
	if update.Title != "Bookmarked stocks on the move" {
		t.Errorf("unexpected roll-up title: %q", update.Title)
	}
	if update.Body != "3 stocks you bookmarked had large score changes." {
		t.Errorf("unexpected roll-up body: %q", update.Body)
	}
}

func TestPrepareDailyAlerts_KeepsUsersIndependent(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	f.outboxRepo.findPendingFn = func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
		return []model.OutboxEvent{
			pendingSpike(1, 7, 41),
			pendingSpike(2, 8, 42),
		}, nil
	}

	if err := f.svc.PrepareDailyAlerts(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	promoted := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxReadyToSend)
	if len(promoted) != 2 {
		t.Errorf("one due spike per user means both promote, got %v", promoted)
	}
	if len(f.notifRepo.contentUpdates) != 0 {
		t.Errorf("no roll-up expected across different users, got %+v", f.notifRepo.contentUpdates)
	}
}

func TestPrepareDailyAlerts_NonSpikePromotesUntouched(t *testing.T) {
	payload, _ := model.OutboxPayload{
		NotificationID: 44,
		UserID:         7,
		Type:           model.NotificationDailySummary,
	}.Encode()

	f := newAlertFixture(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	f.outboxRepo.findPendingFn = func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
		return []model.OutboxEvent{
			{ID: 1, Type: model.EventAlertCreated, Payload: payload, Status: model.OutboxPending},
			pendingSpike(2, 7, 41),
			pendingSpike(3, 7, 42),
		}, nil
	}

	if err := f.svc.PrepareDailyAlerts(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	promoted := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxReadyToSend)
	if len(promoted) != 2 {
		t.Fatalf("expected summary plus spike representative promoted, got %v", promoted)
	}
	// The roll-up only counts the spikes, not the summary.
	if len(f.notifRepo.contentUpdates) != 1 || f.notifRepo.contentUpdates[0].Body != "2 stocks you bookmarked had large score changes." {
		t.Errorf("unexpected roll-up: %+v", f.notifRepo.contentUpdates)
	}
}

func TestPrepareDailyAlerts_UnparsablePayloadStillPromotes(t *testing.T) {
	f := newAlertFixture(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	f.outboxRepo.findPendingFn = func(ctx context.Context, now time.Time) ([]model.OutboxEvent, error) {
		return []model.OutboxEvent{
			{ID: 1, Type: model.EventAlertCreated, Payload: "not json", Status: model.OutboxPending},
		}, nil
	}

	if err := f.svc.PrepareDailyAlerts(context.Background()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	promoted := transitionsOf(f.outboxRepo.updateStatusCalls, model.OutboxReadyToSend)
	if len(promoted) != 1 {
		t.Errorf("broken payloads are the dispatcher's problem, expected promotion, got %v", promoted)
	}
}
