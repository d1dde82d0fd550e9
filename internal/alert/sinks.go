package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// WebhookSink posts events to a generic HTTP webhook with per-event-type
// cooldown so a burst of identical alerts does not hammer the receiver.
type WebhookSink struct {
	url      string
	client   *http.Client
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[EventType]time.Time
	nowFunc  func() time.Time
}

// NewWebhookSink creates a webhook sink. A zero cooldown disables
// suppression.
func NewWebhookSink(url string, cooldown time.Duration) *WebhookSink {
	return &WebhookSink{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		cooldown: cooldown,
		lastSent: make(map[EventType]time.Time),
		nowFunc:  time.Now,
	}
}

// Send posts the event, respecting cooldown. Suppressed sends return nil.
func (w *WebhookSink) Send(ctx context.Context, event Event) error {
	if w.cooldown > 0 {
		w.mu.Lock()
		if last, ok := w.lastSent[event.Type]; ok && w.nowFunc().Sub(last) < w.cooldown {
			w.mu.Unlock()
			return nil
		}
		w.lastSent[event.Type] = w.nowFunc()
		w.mu.Unlock()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSink does nothing. Used when no external channels are configured.
type NoopSink struct{}

func (NoopSink) Send(context.Context, Event) error { return nil }
