// Package alert fans fraud events out to live monitoring sessions and to
// optional external channels. Delivery to subscribers is best-effort and
// at-most-once; the durable fraud log and cluster stores remain the source
// of truth for catch-up.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/giftwell/fraudguard/internal/metrics"
)

// EventType names the real-time channels pushed to admin sessions.
type EventType string

const (
	EventFraudAlert      EventType = "fraud-alert"
	EventTransactionFeed EventType = "transaction-feed"
	EventClusterAlert    EventType = "cluster-alert"
)

// Event is one published fraud or transaction notification.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Sink receives events on an external channel (webhook, redis, ...).
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Broadcaster is the in-process fan-out hub.
type Broadcaster struct {
	logger *slog.Logger
	sinks  []Sink

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroadcaster creates a hub. Sinks are optional external channels that
// receive every published event alongside the live subscribers.
func NewBroadcaster(logger *slog.Logger, sinks ...Sink) *Broadcaster {
	return &Broadcaster{
		logger: logger.With("component", "alert_broadcaster"),
		sinks:  sinks,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a monitoring session. The returned cancel func must
// be called when the session disconnects; events published while
// disconnected are simply missed.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	metrics.AlertSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
				metrics.AlertSubscribers.Dec()
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of connected sessions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers the event to every subscriber without blocking; a
// subscriber whose buffer is full misses the event. External sinks are
// invoked synchronously but failures never propagate to the caller.
func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	metrics.AlertsPublishedTotal.WithLabelValues(string(event.Type)).Inc()

	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			metrics.AlertsDroppedTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
	b.mu.Unlock()

	for _, s := range b.sinks {
		if err := s.Send(ctx, event); err != nil {
			b.logger.Warn("alert sink send failed", "event", event.Type, "error", err)
		}
	}
}

// Close disconnects all subscribers. Further Subscribe calls return a
// closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		metrics.AlertSubscribers.Dec()
	}
}
