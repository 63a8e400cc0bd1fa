package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream and returns the message
	// ID assigned by Redis.
	Publish(ctx context.Context, stream string, event ScoreEvent) (messageID string, err error)

	// PublishScoreChanged builds a score change event and adds it to the
	// scores stream.
	PublishScoreChanged(ctx context.Context, stockID int64, oldScore, newScore int) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD.
// Uses "*" so Redis assigns the message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event ScoreEvent) (string, error) {
	values, err := event.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s stock=%d %d->%d",
		stream, event.Type, messageID, event.StockID, event.OldScore, event.NewScore)
	return messageID, nil
}

// PublishScoreChanged is a convenience method for publishing score changes.
func (p *RedisPublisher) PublishScoreChanged(ctx context.Context, stockID int64, oldScore, newScore int) (string, error) {
	event := NewScoreChangedEvent(stockID, oldScore, newScore)
	return p.Publish(ctx, StreamScores, event)
}
