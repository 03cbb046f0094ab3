package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jackzampolin/shelfscan/internal/types"
)

// CompletionChannel is the pub/sub channel carrying completion events from
// the validation worker to the notifier. ProgressChannel carries best-effort
// intermediate stage notifications; losing one is fine.
const (
	CompletionChannel = "shelfscan.completions"
	ProgressChannel   = "shelfscan.progress"
)

// EventBus publishes and subscribes to completion events over Redis
// pub/sub. Delivery is fire-and-forget: the durable result lives
// in object storage, the event only wakes the notifier.
type EventBus struct {
	client *redis.Client
}

// NewEventBus wraps a Redis client.
func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

// PublishCompletion emits one completion event.
func (b *EventBus) PublishCompletion(ctx context.Context, ev *types.CompletionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize completion event: %w", err)
	}
	if err := b.client.Publish(ctx, CompletionChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}
	return nil
}

// PublishProgress emits a best-effort stage notification. Failures are
// returned for logging only; callers never retry these.
func (b *EventBus) PublishProgress(ctx context.Context, p *types.ProgressPush) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize progress event: %w", err)
	}
	if err := b.client.Publish(ctx, ProgressChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of raw completion event payloads. The
// subscription closes when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	return b.subscribe(ctx, CompletionChannel)
}

// SubscribeProgress returns a channel of raw progress event payloads.
func (b *EventBus) SubscribeProgress(ctx context.Context) (<-chan []byte, error) {
	return b.subscribe(ctx, ProgressChannel)
}

func (b *EventBus) subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
