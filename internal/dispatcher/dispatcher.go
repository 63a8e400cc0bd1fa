package dispatcher

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"stockpulse/internal/model"
	"stockpulse/internal/repository"
)

// Pusher is the mobile push channel the dispatcher fans out to.
// FCMService implements it; NopPusher stands in when FCM is not configured,
// so the dispatcher itself never null-checks the channel.
type Pusher interface {
	SendAlert(ctx context.Context, userID int64, title, body string, data map[string]string) error
	SendSilent(ctx context.Context, userID int64, data map[string]string) error
}

// SSEPusher is the live browser channel. Pushes are best-effort and never
// fail: a dead session is the hub's problem, not the dispatcher's.
type SSEPusher interface {
	PushToUser(userID int64, n *model.Notification)
}

// AlertPreparer runs the morning roll-up ahead of the scheduled dispatch
// window (StockScoreAlertService.PrepareDailyAlerts).
type AlertPreparer interface {
	PrepareDailyAlerts(ctx context.Context) error
}

// Config holds the dispatcher's polling and retention tunables.
type Config struct {
	ImmediateInterval  time.Duration  // immediate loop period
	RetryInterval      time.Duration  // retry loop period
	ImmediatePageSize  int            // events per immediate cycle
	ScheduledPageSize  int            // events per scheduled cycle
	AlertHour          int            // local hour of the scheduled dispatch window
	CleanupHour        int            // local hour of the daily cleanup
	ProcessedRetention time.Duration  // how long PROCESSED rows are kept
	RetryRetention     time.Duration  // how long RETRY rows keep retrying
	Location           *time.Location // local timezone for the daily schedule
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		ImmediateInterval:  60 * time.Second,
		RetryInterval:      5 * time.Minute,
		ImmediatePageSize:  100,
		ScheduledPageSize:  200,
		AlertHour:          9,
		CleanupHour:        3,
		ProcessedRetention: 7 * 24 * time.Hour,
		RetryRetention:     30 * 24 * time.Hour,
		Location:           time.Local,
	}
}

// maxBackoffMinutes caps the exponential retry backoff at five hours, so a
// permanently-misbehaving downstream still gets retried on a bounded cadence
// instead of drifting out indefinitely.
const maxBackoffMinutes = 300

// Dispatcher drains the outbox: it polls for dispatchable events on three
// independent schedules (immediate, morning window, retry), delivers each
// through both push channels, and manages the status state machine.
//
// Delivery is at-least-once. Two loops racing on a stale page can both
// deliver the same event; the compare-and-set on status keeps the row
// consistent and consumers are expected to tolerate the duplicate.
type Dispatcher struct {
	outboxRepo repository.OutboxRepository
	notifRepo  repository.NotificationRepository
	sse        SSEPusher
	push       Pusher
	preparer   AlertPreparer
	cfg        Config

	// now is swapped out in tests to pin the clock.
	now func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(
	outboxRepo repository.OutboxRepository,
	notifRepo repository.NotificationRepository,
	sse SSEPusher,
	push Pusher,
	preparer AlertPreparer,
	cfg Config,
) *Dispatcher {
	def := DefaultConfig()
	if cfg.ImmediateInterval <= 0 {
		cfg.ImmediateInterval = def.ImmediateInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.ImmediatePageSize <= 0 {
		cfg.ImmediatePageSize = def.ImmediatePageSize
	}
	if cfg.ScheduledPageSize <= 0 {
		cfg.ScheduledPageSize = def.ScheduledPageSize
	}
	if cfg.ProcessedRetention <= 0 {
		cfg.ProcessedRetention = def.ProcessedRetention
	}
	if cfg.RetryRetention <= 0 {
		cfg.RetryRetention = def.RetryRetention
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Dispatcher{
		outboxRepo: outboxRepo,
		notifRepo:  notifRepo,
		sse:        sse,
		push:       push,
		preparer:   preparer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start launches the polling loops and daily jobs.
// Call Stop to shut them down gracefully.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(4)
	go d.runImmediateLoop()
	go d.runScheduledLoop()
	go d.runRetryLoop()
	go d.runDailyJobs()

	log.Printf("[Dispatcher] Started: immediate=%s retry=%s alertHour=%02d:00 cleanupHour=%02d:00",
		d.cfg.ImmediateInterval, d.cfg.RetryInterval, d.cfg.AlertHour, d.cfg.CleanupHour)
}

// Stop shuts down all loops and blocks until they have finished.
func (d *Dispatcher) Stop() {
	log.Printf("[Dispatcher] Stopping...")
	d.cancel()
	d.wg.Wait()
	log.Printf("[Dispatcher] Stopped")
}

// runImmediateLoop drains unscheduled (or already-due) events on a short
// fixed period.
func (d *Dispatcher) runImmediateLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.ImmediateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.DispatchImmediate(d.ctx)
		}
	}
}

// runScheduledLoop polls every minute but only acts inside the morning
// alert window, where the bulk of scheduled events comes due at once.
func (d *Dispatcher) runScheduledLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.now().In(d.cfg.Location).Hour() != d.cfg.AlertHour {
				continue
			}
			d.DispatchScheduled(d.ctx)
		}
	}
}

func (d *Dispatcher) runRetryLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.DispatchRetries(d.ctx)
		}
	}
}

// runDailyJobs fires the cleanup sweep and the morning alert preparation at
// their fixed local times. A job failure is logged and the job simply waits
// for its next slot; nothing here may kill the scheduler.
func (d *Dispatcher) runDailyJobs() {
	defer d.wg.Done()

	cleanupTimer := time.NewTimer(d.untilNextHour(d.cfg.CleanupHour))
	prepareTimer := time.NewTimer(d.untilNextHour(d.cfg.AlertHour))
	defer cleanupTimer.Stop()
	defer prepareTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-cleanupTimer.C:
			d.Cleanup(d.ctx)
			cleanupTimer.Reset(d.untilNextHour(d.cfg.CleanupHour))
		case <-prepareTimer.C:
			if err := d.preparer.PrepareDailyAlerts(d.ctx); err != nil {
				log.Printf("[Dispatcher] Daily alert preparation failed: %v", err)
			}
			prepareTimer.Reset(d.untilNextHour(d.cfg.AlertHour))
		}
	}
}

// untilNextHour returns the duration until the next occurrence of the given
// local hour.
func (d *Dispatcher) untilNextHour(hour int) time.Duration {
	now := d.now().In(d.cfg.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, d.cfg.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// DispatchImmediate processes one page of events eligible right now:
// PENDING or READY_TO_SEND, unscheduled or already due.
func (d *Dispatcher) DispatchImmediate(ctx context.Context) {
	statuses := []model.OutboxStatus{model.OutboxPending, model.OutboxReadyToSend}
	events, err := d.outboxRepo.FindDispatchable(ctx, statuses, d.now(), d.cfg.ImmediatePageSize)
	if err != nil {
		log.Printf("[Dispatcher] Immediate poll failed: %v", err)
		return
	}
	d.processBatch(ctx, events)
}

// DispatchScheduled processes one (larger) page of scheduled events whose
// delivery time has arrived.
func (d *Dispatcher) DispatchScheduled(ctx context.Context) {
	statuses := []model.OutboxStatus{model.OutboxPending, model.OutboxReadyToSend}
	events, err := d.outboxRepo.FindScheduledDue(ctx, statuses, d.now(), d.cfg.ScheduledPageSize)
	if err != nil {
		log.Printf("[Dispatcher] Scheduled poll failed: %v", err)
		return
	}
	d.processBatch(ctx, events)
}

// DispatchRetries processes every RETRY event whose backoff has elapsed.
func (d *Dispatcher) DispatchRetries(ctx context.Context) {
	events, err := d.outboxRepo.FindRetryable(ctx, d.now())
	if err != nil {
		log.Printf("[Dispatcher] Retry poll failed: %v", err)
		return
	}
	d.processBatch(ctx, events)
}

func (d *Dispatcher) processBatch(ctx context.Context, events []model.OutboxEvent) {
	for _, event := range events {
		d.ProcessEvent(ctx, event)
	}
}

// ProcessEvent runs the delivery state machine for one event.
//
// Only ALERT_CREATED events are acted on; anything else is left untouched
// for whatever other consumer owns that type. Success transitions the row
// to PROCESSED through a compare-and-set, so a concurrent loop that already
// claimed the event is detected and this attempt's (duplicate) delivery is
// simply not recorded twice.
func (d *Dispatcher) ProcessEvent(ctx context.Context, event model.OutboxEvent) {
	if event.Type != model.EventAlertCreated {
		return
	}

	if err := d.deliver(ctx, event); err != nil {
		d.handleError(ctx, event, err)
		return
	}

	claimed, err := d.outboxRepo.UpdateStatus(ctx, event.ID, event.Status, model.OutboxProcessed)
	if err != nil {
		d.handleError(ctx, event, err)
		return
	}
	if !claimed {
		log.Printf("[Dispatcher] Event=%d already claimed by another loop", event.ID)
		return
	}
	log.Printf("[Dispatcher] Event=%d delivered", event.ID)
}

// deliver pushes the event's notification through both channels.
// The SSE push cannot fail; an FCM error (or a broken payload, or a missing
// notification row) is returned to the caller for retry handling.
func (d *Dispatcher) deliver(ctx context.Context, event model.OutboxEvent) error {
	payload, err := model.ParseOutboxPayload(event.Payload)
	if err != nil {
		return err
	}

	n, err := d.notifRepo.GetByID(ctx, payload.NotificationID)
	if err != nil {
		return err
	}

	d.sse.PushToUser(payload.UserID, n)

	data := map[string]string{
		"notificationId": strconv.FormatInt(n.ID, 10),
		"stockId":        "",
		"type":           string(n.Type),
	}
	if n.StockID != nil {
		data["stockId"] = strconv.FormatInt(*n.StockID, 10)
	}

	if payload.QuietPush {
		return d.push.SendSilent(ctx, payload.UserID, data)
	}
	return d.push.SendAlert(ctx, payload.UserID, n.Title, n.Body, data)
}

// handleError routes any delivery failure into the RETRY state with
// exponential backoff. There is no retry-count ceiling: an event only stops
// retrying when the age-based cleanup sweep marks it FAILED.
func (d *Dispatcher) handleError(ctx context.Context, event model.OutboxEvent, cause error) {
	retryCount := event.RetryCount + 1
	delay := backoffDelay(retryCount)
	nextAttemptAt := d.now().Add(delay)

	if err := d.outboxRepo.MarkRetry(ctx, event.ID, retryCount, nextAttemptAt); err != nil {
		log.Printf("[Dispatcher] Event=%d mark retry failed: %v (original error: %v)", event.ID, err, cause)
		return
	}

	log.Printf("[Dispatcher] Event=%d dispatch failed, will retry: retryCount=%d nextAttempt=%s err=%v",
		event.ID, retryCount, nextAttemptAt.Format(time.RFC3339), cause)
}

// backoffDelay returns min(300, 2^(retryCount-1)) minutes: 1, 2, 4, ...
// doubling until it saturates at the five-hour ceiling.
func backoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	shift := retryCount - 1
	if shift > 9 {
		// 2^9 already exceeds the cap; avoid shifting into overflow.
		return maxBackoffMinutes * time.Minute
	}
	minutes := int64(1) << shift
	if minutes > maxBackoffMinutes {
		minutes = maxBackoffMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Cleanup prunes the outbox: PROCESSED events past retention are deleted,
// RETRY events past the (longer) retry retention are abandoned as FAILED.
// FAILED rows are never deleted here; they stay for inspection.
// Failures are logged and swallowed so the daily schedule survives them.
func (d *Dispatcher) Cleanup(ctx context.Context) {
	now := d.now()

	deleted, err := d.outboxRepo.DeleteProcessedBefore(ctx, now.Add(-d.cfg.ProcessedRetention))
	if err != nil {
		log.Printf("[Dispatcher] Cleanup delete failed: %v", err)
	} else if deleted > 0 {
		log.Printf("[Dispatcher] Cleanup: deleted %d processed events", deleted)
	}

	failed, err := d.outboxRepo.MarkFailedRetryingBefore(ctx, now.Add(-d.cfg.RetryRetention))
	if err != nil {
		log.Printf("[Dispatcher] Cleanup mark-failed failed: %v", err)
	} else if failed > 0 {
		log.Printf("[Dispatcher] Cleanup: abandoned %d stale retry events", failed)
	}
}
