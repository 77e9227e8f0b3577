package stream

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher emits change events onto the change-data stream.
// Repositories call it after successful store writes.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// RedisPublisher publishes change envelopes on per-table Redis channels.
type RedisPublisher struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisPublisher creates a publisher over the given Redis client.
func NewRedisPublisher(client *redis.Client, log *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

// Publish encodes and fires the event. Delivery is at-least-once from the
// consumer's point of view; subscribers that are offline simply miss the
// event and recover via reconciliation reads.
func (p *RedisPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
	channel, payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn("change event publish failed", "channel", channel, "err", err)
		return err
	}
	return nil
}

// NopPublisher discards events. Used where no stream transport is wired,
// e.g. the seed command.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }
