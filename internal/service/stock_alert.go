package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"stockpulse/internal/model"
	"stockpulse/internal/repository"
)

// DefaultScoreAlertThreshold is the minimum absolute score change that
// warrants an alert.
const DefaultScoreAlertThreshold = 15

// StockScoreAlertService decides when a stock score change is alert-worthy
// and fans out scheduled notifications to every user who bookmarked the
// stock with notifications enabled.
//
// It is a producer only: it never delivers anything itself. Delivery
// happens once the dispatcher picks the outbox events up at the scheduled
// morning slot.
type StockScoreAlertService struct {
	notifService *NotificationService
	notifRepo    repository.NotificationRepository
	outboxRepo   repository.OutboxRepository
	stockRepo    repository.StockRepository

	threshold int
	alertHour int
	loc       *time.Location

	// now is swapped out in tests to pin the clock.
	now func() time.Time
}

func NewStockScoreAlertService(
	notifService *NotificationService,
	notifRepo repository.NotificationRepository,
	outboxRepo repository.OutboxRepository,
	stockRepo repository.StockRepository,
	threshold int,
	alertHour int,
	loc *time.Location,
) *StockScoreAlertService {
	if threshold <= 0 {
		threshold = DefaultScoreAlertThreshold
	}
	if loc == nil {
		loc = time.Local
	}
	return &StockScoreAlertService{
		notifService: notifService,
		notifRepo:    notifRepo,
		outboxRepo:   outboxRepo,
		stockRepo:    stockRepo,
		threshold:    threshold,
		alertHour:    alertHour,
		loc:          loc,
		now:          time.Now,
	}
}

// OnScoreChanged evaluates a score transition and, when the absolute change
// reaches the threshold, creates one scheduled SCORE_SPIKE notification per
// interested user, all targeting the next morning alert slot.
func (s *StockScoreAlertService) OnScoreChanged(ctx context.Context, stockID int64, oldScore, newScore int) error {
	delta := newScore - oldScore
	if delta < 0 {
		delta = -delta
	}
	if delta < s.threshold {
		return nil
	}

	users, err := s.stockRepo.FindNotifiableUsers(ctx, stockID)
	if err != nil {
		return fmt.Errorf("find notifiable users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	stock, err := s.stockRepo.GetByID(ctx, stockID)
	if err != nil {
		return fmt.Errorf("get stock: %w", err)
	}

	scheduledAt := s.nextAlertInstant()
	title := fmt.Sprintf("%s score alert: %d -> %d", stock.SymbolName, oldScore, newScore)
	body := fmt.Sprintf("A stock you bookmarked moved %dp.", delta)

	for _, user := range users {
		err := s.notifService.CreateScheduledStock(ctx, user.ID, stock,
			model.NotificationScoreSpike, title, body, oldScore, newScore, delta, scheduledAt)
		if err != nil {
			return fmt.Errorf("create score alert for user %d: %w", user.ID, err)
		}
	}

	log.Printf("[StockAlert] Score spike queued: stock=%d %d->%d users=%d scheduledAt=%s",
		stockID, oldScore, newScore, len(users), scheduledAt.Format(time.RFC3339))
	return nil
}

// nextAlertInstant computes the next occurrence of the local alert hour:
// today if it has not passed yet, otherwise tomorrow.
func (s *StockScoreAlertService) nextAlertInstant() time.Time {
	now := s.now().In(s.loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), s.alertHour, 0, 0, 0, s.loc)
	if now.After(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// PrepareDailyAlerts runs at the morning alert slot, just ahead of the
// scheduled dispatch loop. PENDING events whose delivery time has arrived
// are promoted to READY_TO_SEND; when one user has several SCORE_SPIKE
// alerts due at once, a single representative is promoted (its notification
// rewritten to a roll-up message) and the rest are suppressed as PROCESSED
// so the user gets one push instead of a burst.
func (s *StockScoreAlertService) PrepareDailyAlerts(ctx context.Context) error {
	events, err := s.outboxRepo.FindPendingScheduledBefore(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find due pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	spikesByUser := make(map[int64][]model.OutboxEvent)
	var readyCount, suppressedCount int

	promote := func(id int64) {
		ok, err := s.outboxRepo.UpdateStatus(ctx, id, model.OutboxPending, model.OutboxReadyToSend)
		if err != nil {
			log.Printf("[StockAlert] Promote event=%d failed: %v", id, err)
			return
		}
		if ok {
			readyCount++
		}
	}

	for _, event := range events {
		payload, err := model.ParseOutboxPayload(event.Payload)
		if err != nil {
			// Unparsable payloads go straight to the dispatcher, which owns
			// failure handling.
			promote(event.ID)
			continue
		}
		if payload.Type == model.NotificationScoreSpike {
			spikesByUser[payload.UserID] = append(spikesByUser[payload.UserID], event)
			continue
		}
		promote(event.ID)
	}

	for userID, userEvents := range spikesByUser {
		representative := userEvents[0]
		promote(representative.ID)

		if len(userEvents) == 1 {
			continue
		}

		s.rewriteRollupNotification(ctx, representative, len(userEvents))
		for _, surplus := range userEvents[1:] {
			ok, err := s.outboxRepo.UpdateStatus(ctx, surplus.ID, model.OutboxPending, model.OutboxProcessed)
			if err != nil {
				log.Printf("[StockAlert] Suppress event=%d failed: %v", surplus.ID, err)
				continue
			}
			if ok {
				suppressedCount++
			}
		}
		log.Printf("[StockAlert] Rolled up %d score alerts for user=%d", len(userEvents), userID)
	}

	log.Printf("[StockAlert] Daily alerts prepared: totalPending=%d readyToSend=%d suppressed=%d",
		len(events), readyCount, suppressedCount)
	return nil
}

// rewriteRollupNotification replaces the representative notification's text
// with a roll-up covering all of the user's spiking bookmarks.
func (s *StockScoreAlertService) rewriteRollupNotification(ctx context.Context, representative model.OutboxEvent, total int) {
	payload, err := model.ParseOutboxPayload(representative.Payload)
	if err != nil {
		return
	}
	title := "Bookmarked stocks on the move"
	body := fmt.Sprintf("%d stocks you bookmarked had large score changes.", total)
	if err := s.notifRepo.UpdateContent(ctx, payload.NotificationID, title, body); err != nil {
		log.Printf("[StockAlert] Rewrite notification=%d failed: %v", payload.NotificationID, err)
	}
}
