// Package livefeed fans freshly persisted alerts out to in-process
// subscribers (the SSE endpoint) and, when configured, to a Redis channel so
// other consumers can follow the stream.
package livefeed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/siem/internal/event"
)

// Envelope wraps an alert for the wire with a delivery ID and publish time.
type Envelope struct {
	ID    string      `json:"id"`
	Time  time.Time   `json:"time"`
	Alert event.Alert `json:"alert"`
}

// SSEFormat renders the envelope as a Server-Sent Events frame.
func (e *Envelope) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: alert\ndata: %s\nid: %s\n\n", data, e.ID)), nil
}

// Feed is an in-process pub/sub bus for alerts. Subscriber channels are
// buffered; a slow subscriber drops frames rather than blocking the
// detection path.
type Feed struct {
	mu         sync.RWMutex
	subs       []chan *Envelope
	bufferSize int
	logger     *slog.Logger
}

func New(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		bufferSize: 100,
		logger:     logger.With("component", "livefeed"),
	}
}

// Subscribe returns a channel receiving every published alert.
func (f *Feed) Subscribe() chan *Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan *Envelope, f.bufferSize)
	f.subs = append(f.subs, ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (f *Feed) Unsubscribe(ch chan *Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()

	filtered := f.subs[:0]
	for _, s := range f.subs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	f.subs = filtered
}

// Publish fans an alert out to all subscribers. Never blocks: full channels
// drop the frame and the loss is logged at debug.
func (f *Feed) Publish(a event.Alert) *Envelope {
	env := &Envelope{
		ID:    uuid.New().String(),
		Time:  time.Now().UTC(),
		Alert: a,
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- env:
		default:
			f.logger.Debug("subscriber buffer full, frame dropped", "rule", a.Rule)
		}
	}
	return env
}

// SubscriberCount reports active subscriptions, used by the health endpoint.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
