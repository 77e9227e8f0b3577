package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	engineerr "github.com/nestmatch/engine/internal/errors"
)

// Subscriber consumes the three change-feed channels and delivers decoded
// events in arrival order on a single Go channel.
type Subscriber struct {
	client          *redis.Client
	log             *slog.Logger
	maxResubscribes int
	onDrop          func(error)
}

// NewSubscriber creates a subscriber. onDrop is invoked once if
// re-subscription keeps failing; it may be nil.
func NewSubscriber(client *redis.Client, log *slog.Logger, maxResubscribes int, onDrop func(error)) *Subscriber {
	if maxResubscribes <= 0 {
		maxResubscribes = 5
	}
	return &Subscriber{
		client:          client,
		log:             log,
		maxResubscribes: maxResubscribes,
		onDrop:          onDrop,
	}
}

// Subscribe wires all change channels and returns the event channel plus an
// unsubscribe function. A single underlying pub/sub connection carries every
// channel, so unsubscribing tears all of them down atomically. Events that
// occur while the transport is down are never replayed; reconciliation reads
// cover the gap.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	ps := s.client.Subscribe(subCtx, Channels()...)
	if _, err := ps.Receive(subCtx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan ChangeEvent, 64)
	go s.pump(subCtx, ps, out)

	return out, cancel, nil
}

func (s *Subscriber) pump(ctx context.Context, ps *redis.PubSub, out chan<- ChangeEvent) {
	defer close(out)
	defer func() { _ = ps.Close() }()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry budget is bounded by attempt count, not time
	failures := 0

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures > s.maxResubscribes {
				s.log.Error("change stream dropped", "attempts", failures, "err", err)
				if s.onDrop != nil {
					s.onDrop(&engineerr.SubscriptionDroppedError{Attempts: failures, Err: err})
				}
				return
			}
			s.log.Warn("change stream receive failed, re-subscribing", "attempt", failures, "err", err)
			_ = ps.Close()
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return
			}
			ps = s.client.Subscribe(ctx, Channels()...)
			continue
		}
		failures = 0
		bo.Reset()

		ev, decErr := Decode([]byte(msg.Payload))
		if decErr != nil {
			s.log.Warn("dropping malformed change event", "channel", msg.Channel, "err", decErr)
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
