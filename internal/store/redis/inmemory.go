package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/giftwell/fraudguard/internal/alert"
)

// InMemoryPubSub is a process-local stand-in for the Redis publisher, used
// in tests and single-instance deployments without a Redis URL.
type InMemoryPubSub struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	closed bool
}

func NewInMemoryPubSub() *InMemoryPubSub {
	return &InMemoryPubSub{subs: make(map[string][]chan []byte)}
}

// Send implements alert.Sink.
func (m *InMemoryPubSub) Send(_ context.Context, event alert.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("pubsub closed")
	}
	for _, ch := range m.subs[channelPrefix+string(event.Type)] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns raw event payloads for one event type.
func (m *InMemoryPubSub) Subscribe(t alert.EventType) <-chan []byte {
	ch := make(chan []byte, 16)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	key := channelPrefix + string(t)
	m.subs[key] = append(m.subs[key], ch)
	return ch
}

func (m *InMemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for key, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(m.subs, key)
	}
	return nil
}
