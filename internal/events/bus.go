package events

import (
	"sync"
	"time"
)

// EventType represents different types of events broadcast to admin-surface
// subscribers.
type EventType string

const (
	EventLogLine          EventType = "LOG_LINE"
	EventCandleClosed     EventType = "CANDLE_CLOSED"
	EventArchiveTaskDone  EventType = "ARCHIVE_TASK_DONE"
	EventArchiveTaskError EventType = "ARCHIVE_TASK_ERROR"
	EventSystemStatus     EventType = "SYSTEM_STATUS"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. It fans out events to
// admin-API SSE streams; it carries no retry or persistence semantics of its
// own since subscribers that miss an event can re-derive current state from
// the admin API's snapshot endpoints.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	tempSubs    map[EventType]map[uint64]Subscriber
	allSubs     []Subscriber
	nextSubID   uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		tempSubs:    make(map[EventType]map[uint64]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeTemp registers a subscriber that can later be removed, for
// request-scoped listeners such as an SSE connection. It returns an
// unsubscribe function safe to call once.
func (eb *EventBus) SubscribeTemp(eventType EventType, subscriber Subscriber) (unsubscribe func()) {
	eb.mu.Lock()
	id := eb.nextSubID
	eb.nextSubID++
	if eb.tempSubs[eventType] == nil {
		eb.tempSubs[eventType] = make(map[uint64]Subscriber)
	}
	eb.tempSubs[eventType][id] = subscriber
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		delete(eb.tempSubs[eventType], id)
		eb.mu.Unlock()
	}
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.tempSubs[event.Type] {
		go sub(event)
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishLogLine publishes a log line for the admin /api/logs/sse stream.
func (eb *EventBus) PublishLogLine(line string) {
	eb.Publish(Event{
		Type: EventLogLine,
		Data: map[string]interface{}{"line": line},
	})
}

// PublishCandleClosed publishes a candle-closed notification.
func (eb *EventBus) PublishCandleClosed(symbol, timeframe string, closeTimeMs int64) {
	eb.Publish(Event{
		Type: EventCandleClosed,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"timeframe":     timeframe,
			"close_time_ms": closeTimeMs,
		},
	})
}

// PublishArchiveTaskDone publishes an archive task completion.
func (eb *EventBus) PublishArchiveTaskDone(symbol, timeframe, direction string, barCount int) {
	eb.Publish(Event{
		Type: EventArchiveTaskDone,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
			"direction": direction,
			"bar_count": barCount,
		},
	})
}

// PublishArchiveTaskError publishes an archive task failure.
func (eb *EventBus) PublishArchiveTaskError(symbol, timeframe, direction, message string) {
	eb.Publish(Event{
		Type: EventArchiveTaskError,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
			"direction": direction,
			"message":   message,
		},
	})
}
