package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"stockpulse/internal/queue"
)

// ScoreAlertTrigger defines the interface for reacting to score changes.
// This abstracts the alert service so workers don't depend on it directly.
type ScoreAlertTrigger interface {
	// OnScoreChanged evaluates a score movement and queues alerts for
	// users who bookmarked the stock, if the movement is large enough.
	OnScoreChanged(ctx context.Context, stockID int64, oldScore, newScore int) error
}

// Handler processes score events from the queue.
type Handler struct {
	alertTrigger ScoreAlertTrigger
}

// NewHandler creates a new event handler.
func NewHandler(alertTrigger ScoreAlertTrigger) *Handler {
	return &Handler{alertTrigger: alertTrigger}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.ScoreEvent) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventScoreChanged:
		err = h.handleScoreChanged(ctx, event)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handleScoreChanged hands a score movement to the alert service.
func (h *Handler) handleScoreChanged(ctx context.Context, event queue.ScoreEvent) error {
	log.Printf("[Worker] ScoreChanged: stock=%d old=%d new=%d", event.StockID, event.OldScore, event.NewScore)

	if err := h.alertTrigger.OnScoreChanged(ctx, event.StockID, event.OldScore, event.NewScore); err != nil {
		return fmt.Errorf("score alert: %w", err)
	}

	return nil
}
