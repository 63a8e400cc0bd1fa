package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the score stream
const (
	EventScoreChanged = "score_changed"
)

// Stream names
const (
	StreamScores = "stream:scores"
)

// Consumer group name for score workers
const (
	ConsumerGroupScores = "score_workers"
)

// ScoreEvent is published by the score-computation batch whenever a stock's
// score is recalculated. Workers feed it to the alert trigger, which decides
// whether the change is worth notifying anyone about.
type ScoreEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix seconds when the change was observed

	StockID  int64 `json:"stock_id"`
	OldScore int   `json:"old_score"`
	NewScore int   `json:"new_score"`
}

// NewScoreChangedEvent creates an event for a recalculated stock score.
func NewScoreChangedEvent(stockID int64, oldScore, newScore int) ScoreEvent {
	return ScoreEvent{
		Type:      EventScoreChanged,
		Timestamp: time.Now().Unix(),
		StockID:   stockID,
		OldScore:  oldScore,
		NewScore:  newScore,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so the event is serialized to JSON
// in a "data" field alongside the bare type for quick inspection.
func (e ScoreEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseScoreEvent parses a ScoreEvent from Redis stream message values.
func ParseScoreEvent(values map[string]interface{}) (ScoreEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return ScoreEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event ScoreEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return ScoreEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
