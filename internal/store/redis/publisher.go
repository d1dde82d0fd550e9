// Package redis propagates alert events across fraudguard instances via
// Redis pub/sub, so a monitoring session attached to one instance sees
// fraud detected on another.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/giftwell/fraudguard/internal/alert"
)

const channelPrefix = "fraudguard:alerts:"

// Publisher is an alert.Sink backed by Redis pub/sub. One channel per
// event type keeps remote consumers from parsing events they do not want.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Publisher{
		client: client,
		logger: logger.With("component", "redis_publisher"),
	}, nil
}

// Send implements alert.Sink.
func (p *Publisher) Send(ctx context.Context, event alert.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	if err := p.client.Publish(ctx, channelPrefix+string(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

// Relay subscribes to the given event types and republishes remote events
// into the local broadcaster until ctx is cancelled. Events published by
// this instance come back through the subscription; callers should relay
// only on instances that serve monitoring sessions without a local guard.
func (p *Publisher) Relay(ctx context.Context, b *alert.Broadcaster, types ...alert.EventType) error {
	channels := make([]string, 0, len(types))
	for _, t := range types {
		channels = append(channels, channelPrefix+string(t))
	}

	sub := p.client.Subscribe(ctx, channels...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event alert.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("dropping undecodable alert event",
					"channel", msg.Channel, "error", err)
				continue
			}
			b.Publish(ctx, event)
		}
	}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// Client exposes the underlying connection for health checks.
func (p *Publisher) Client() *redis.Client {
	return p.client
}
