// Package bus implements the engine's in-process typed event bus: a
// synchronous publish path with a bounded history ring. Subscribers receive
// deliveries on the publishing goroutine, never on a separate queue, so
// per-type ordering follows publication order.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventType is the closed set of events the bus carries.
type EventType string

const (
	EventBetDetected       EventType = "BET_DETECTED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventAlertCreated      EventType = "ALERT_CREATED"
	EventCopyTradeExecuted EventType = "COPY_TRADE_EXECUTED"
	EventRoundStarted      EventType = "ROUND_STARTED"
	EventRoundLocked       EventType = "ROUND_LOCKED"
	EventRoundEnded        EventType = "ROUND_ENDED"
	EventTrendDetected     EventType = "TREND_DETECTED"
	EventTrendUpdated      EventType = "TREND_UPDATED"
	EventCrossSignal       EventType = "CROSS_SIGNAL"
	EventSmartMoneyMove    EventType = "SMART_MONEY_MOVE"
	EventError             EventType = "ERROR"

	// wildcard is the internal subscription key for subscribers that want
	// every event type, never published as an event's own Type.
	wildcard EventType = "*"
)

// Event is one envelope published on the bus. Payload's concrete type is
// determined by Type; subscribers type-assert it themselves.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler processes one event. It may block; later handlers in the same
// dispatch only observe the event after an earlier blocking handler yields.
type Handler func(ctx context.Context, ev Event)

// maxHistory bounds the in-process ring buffer; older events evict FIFO.
const maxHistory = 1000

// Bus is the engine's single in-process event bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventType][]subscription
	history     []Event
	nextSubID   uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[EventType][]subscription)}
}

// Disposer cancels a subscription. Calling it more than once is a no-op.
type Disposer func()

// Subscribe registers handler for events of the given type. Use Subscribe
// with an empty EventType ("") for wildcard delivery of every event.
func (b *Bus) Subscribe(evType EventType, handler Handler) Disposer {
	key := evType
	if key == "" {
		key = wildcard
	}

	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[key] = append(b.subscribers[key], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[key]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[key] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes ev synchronously: every matching subscriber (exact-type then
// wildcard) is invoked on the caller's goroutine, in subscription order,
// before Emit returns.
func (b *Bus) Emit(ctx context.Context, evType EventType, payload interface{}) {
	ev := Event{Type: evType, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
	exact := append([]subscription(nil), b.subscribers[evType]...)
	wild := append([]subscription(nil), b.subscribers[wildcard]...)
	b.mu.Unlock()

	for _, s := range exact {
		s.handler(ctx, ev)
	}
	for _, s := range wild {
		s.handler(ctx, ev)
	}
}

// History returns a snapshot of the most recent events, newest last.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// WaitFor blocks until an event of evType satisfying predicate is published,
// ctx is cancelled, or timeout elapses. A nil predicate matches any event of
// the type.
func (b *Bus) WaitFor(ctx context.Context, evType EventType, timeout time.Duration, predicate func(Event) bool) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan Event, 1)
	dispose := b.Subscribe(evType, func(_ context.Context, ev Event) {
		if predicate == nil || predicate(ev) {
			select {
			case result <- ev:
			default:
			}
		}
	})
	defer dispose()

	select {
	case ev := <-result:
		return ev, nil
	case <-ctx.Done():
		return Event{}, fmt.Errorf("bus: waitFor %s: %w", evType, ctx.Err())
	}
}
