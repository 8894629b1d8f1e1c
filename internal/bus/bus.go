// Package bus is the in-process publish/subscribe channel for domain events.
//
// Delivery is synchronous: Publish calls every direct subscriber of the
// event type, then every wildcard subscriber, each in registration order.
// A failing or panicking subscriber is logged and skipped.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
)

// DefaultMaxSubscribers is the per-type count above which Subscribe warns
// about a probable leak.
const DefaultMaxSubscribers = 100

// Handler receives a published event.
type Handler func(ctx context.Context, ev event.Event) error

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	warned map[string]bool

	maxSubs int
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxSubscribers raises the leak warning threshold. Values below
// DefaultMaxSubscribers are ignored.
func WithMaxSubscribers(n int) Option {
	return func(b *Bus) {
		if n >= DefaultMaxSubscribers {
			b.maxSubs = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[string][]Handler),
		warned:  make(map[string]bool),
		maxSubs: DefaultMaxSubscribers,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers h for eventType, or for every event with "*".
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], h)
	if n := len(b.subs[eventType]); n > b.maxSubs && !b.warned[eventType] {
		b.warned[eventType] = true
		b.logger.Warn("subscriber count above limit, possible leak", "event_type", eventType, "count", n, "limit", b.maxSubs)
	}
}

// SubscriberCount returns the number of handlers registered for eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Publish stamps ev with an ID and timestamp when missing and delivers it.
// It never fails; subscriber errors stay with the subscriber.
func (b *Bus) Publish(ctx context.Context, ev event.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type])+len(b.subs[event.Wildcard]))
	handlers = append(handlers, b.subs[ev.Type]...)
	if ev.Type != event.Wildcard {
		handlers = append(handlers, b.subs[event.Wildcard]...)
	}
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	for i, h := range handlers {
		b.deliver(ctx, i, h, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, idx int, h Handler, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberFailures.WithLabelValues(ev.Type, "panic").Inc()
			b.logger.Error("event subscriber panicked", "event_type", ev.Type, "event_id", ev.ID,
				"subscriber", idx, "panic", fmt.Sprint(r))
		}
	}()
	if err := h(ctx, ev); err != nil {
		metrics.SubscriberFailures.WithLabelValues(ev.Type, "error").Inc()
		b.logger.Warn("event subscriber failed", "event_type", ev.Type, "event_id", ev.ID,
			"subscriber", idx, "err", err)
	}
}
