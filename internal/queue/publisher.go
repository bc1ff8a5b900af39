package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"pulsegate/internal/model"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream and returns the
	// message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event DeliveryEvent) (messageID string, err error)

	// PublishPushRequested queues the provider fan-out for one
	// notification across the target accounts.
	PublishPushRequested(ctx context.Context, n *model.Notification, accountIDs []int64) (string, error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD with an auto-generated
// message ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event DeliveryEvent) (string, error) {
	values, err := event.ToMap()
	if err != nil {
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

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s", stream, event.Type, messageID)
	return messageID, nil
}

func (p *RedisPublisher) PublishPushRequested(ctx context.Context, n *model.Notification, accountIDs []int64) (string, error) {
	return p.Publish(ctx, StreamDelivery, NewPushRequestedEvent(n, accountIDs))
}
