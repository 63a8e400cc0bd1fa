package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"stockpulse/internal/model"
	"stockpulse/internal/repository"
)

// BroadcastService sends the fixed daily announcements every active user
// gets: the morning market summary and the market open/close notices.
// Each send fans out through NotificationService.CreateBulk, so the
// announcements ride the same outbox pipeline as stock alerts.
type BroadcastService struct {
	notifService *NotificationService
	userRepo     repository.UserRepository
	loc          *time.Location

	// now is swapped out in tests to pin the clock.
	now func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroadcastService(notifService *NotificationService, userRepo repository.UserRepository, loc *time.Location) *BroadcastService {
	if loc == nil {
		loc = time.Local
	}
	return &BroadcastService{
		notifService: notifService,
		userRepo:     userRepo,
		loc:          loc,
		now:          time.Now,
	}
}

// Daily send slots, local time. The summary goes out shortly after the
// morning alert window; the market notices track exchange hours and only
// fire on weekdays.
const (
	summaryHour, summaryMinute         = 9, 5
	marketOpenHour, marketOpenMinute   = 9, 10
	marketCloseHour, marketCloseMinute = 15, 30
)

// Start launches the daily broadcast schedule.
// Call Stop to shut it down gracefully.
func (s *BroadcastService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	log.Printf("[Broadcast] Started: summary=%02d:%02d open=%02d:%02d close=%02d:%02d",
		summaryHour, summaryMinute, marketOpenHour, marketOpenMinute, marketCloseHour, marketCloseMinute)
}

// Stop shuts down the schedule and blocks until it has finished.
func (s *BroadcastService) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *BroadcastService) run() {
	defer s.wg.Done()

	summaryTimer := time.NewTimer(s.untilNext(summaryHour, summaryMinute))
	openTimer := time.NewTimer(s.untilNext(marketOpenHour, marketOpenMinute))
	closeTimer := time.NewTimer(s.untilNext(marketCloseHour, marketCloseMinute))
	defer summaryTimer.Stop()
	defer openTimer.Stop()
	defer closeTimer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-summaryTimer.C:
			if err := s.SendDailySummary(s.ctx); err != nil {
				log.Printf("[Broadcast] Daily summary failed: %v", err)
			}
			summaryTimer.Reset(s.untilNext(summaryHour, summaryMinute))
		case <-openTimer.C:
			if s.isWeekday() {
				if err := s.SendMarketOpen(s.ctx); err != nil {
					log.Printf("[Broadcast] Market open notice failed: %v", err)
				}
			}
			openTimer.Reset(s.untilNext(marketOpenHour, marketOpenMinute))
		case <-closeTimer.C:
			if s.isWeekday() {
				if err := s.SendMarketClose(s.ctx); err != nil {
					log.Printf("[Broadcast] Market close notice failed: %v", err)
				}
			}
			closeTimer.Reset(s.untilNext(marketCloseHour, marketCloseMinute))
		}
	}
}

func (s *BroadcastService) isWeekday() bool {
	switch s.now().In(s.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// untilNext returns the duration until the next occurrence of the given
// local time of day.
func (s *BroadcastService) untilNext(hour, minute int) time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// SendDailySummary notifies every active user about yesterday's market.
func (s *BroadcastService) SendDailySummary(ctx context.Context) error {
	return s.broadcast(ctx, model.NotificationDailySummary,
		"Today's market summary",
		"Check yesterday's score movers and market trends.")
}

// SendMarketOpen notifies every active user that the market has opened.
func (s *BroadcastService) SendMarketOpen(ctx context.Context) error {
	return s.broadcast(ctx, model.NotificationMarketOpen,
		"Market open",
		"The market is open. Have a good trading day!")
}

// SendMarketClose notifies every active user that the market has closed.
func (s *BroadcastService) SendMarketClose(ctx context.Context) error {
	return s.broadcast(ctx, model.NotificationMarketClose,
		"Market close",
		"The market has closed for the day.")
}

func (s *BroadcastService) broadcast(ctx context.Context, notifType model.NotificationType, title, body string) error {
	users, err := s.userRepo.FindActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("find active users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	userIDs := make([]int64, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}

	if err := s.notifService.CreateBulk(ctx, userIDs, notifType, title, body, nil); err != nil {
		return err
	}

	log.Printf("[Broadcast] %s sent to %d users", notifType, len(users))
	return nil
}
