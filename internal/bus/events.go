package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Relay lifecycle events. AnyEvent subscribes to all of them.
const (
	EventUpdateReceived = "update.received"
	EventRelaySent      = "relay.sent"
	EventRelayIgnored   = "relay.ignored"
	EventRelayDuplicate = "relay.duplicate"
	EventRelayFailed    = "relay.failed"
	EventKeepAlive      = "keepalive.ping"

	AnyEvent = "*"
)

const defaultHistorySize = 256

// Event is one lifecycle notification. Timestamp is filled in by Emit when zero.
type Event struct {
	Type      string
	Source    string
	Payload   map[string]any
	Timestamp time.Time
}

type EventHandler func(Event)

type subscription struct {
	eventType string
	handler   EventHandler
}

// EventBus fans lifecycle events out to in-process listeners and keeps the
// most recent ones in a fixed-size ring plus running counts per type.
type EventBus struct {
	mu   sync.RWMutex
	subs []subscription

	ring   []Event
	head   int // next write position
	filled bool
	counts map[string]int

	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return newEventBus(logger, defaultHistorySize)
}

func newEventBus(logger *slog.Logger, historySize int) *EventBus {
	return &EventBus{
		ring:   make([]Event, historySize),
		counts: make(map[string]int),
		logger: logger,
	}
}

// On registers handler for eventType, or for every event with AnyEvent.
// Handlers run in registration order.
func (eb *EventBus) On(eventType string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subs = append(eb.subs, subscription{eventType: eventType, handler: handler})
}

// Emit records the event and calls matching handlers synchronously.
// A panicking handler is logged and does not affect the others or the caller.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	eb.ring[eb.head] = event
	eb.head = (eb.head + 1) % len(eb.ring)
	if eb.head == 0 {
		eb.filled = true
	}
	eb.counts[event.Type]++

	var targets []EventHandler
	for _, s := range eb.subs {
		if s.eventType == event.Type || s.eventType == AnyEvent {
			targets = append(targets, s.handler)
		}
	}
	eb.mu.Unlock()

	for _, h := range targets {
		eb.dispatch(event, h)
	}
}

func (eb *EventBus) dispatch(event Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "source", event.Source, "panic", r)
		}
	}()
	h(event)
}

// Replay returns retained events of eventType (or AnyEvent) emitted at or
// after since, oldest first.
func (eb *EventBus) Replay(eventType string, since time.Time) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var out []Event
	for _, e := range eb.retained() {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == AnyEvent || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// retained returns the ring contents in emit order. Callers hold mu.
func (eb *EventBus) retained() []Event {
	if !eb.filled {
		return eb.ring[:eb.head]
	}
	out := make([]Event, 0, len(eb.ring))
	out = append(out, eb.ring[eb.head:]...)
	return append(out, eb.ring[:eb.head]...)
}

// Counts returns how many events of each type were emitted since start,
// including those already evicted from the history.
func (eb *EventBus) Counts() map[string]int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	out := make(map[string]int, len(eb.counts))
	for k, v := range eb.counts {
		out[k] = v
	}
	return out
}
