// Package events provides a lightweight in-process pub/sub event bus.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a kind of system event
type EventType string

const (
	CycleStarted   EventType = "CYCLE_STARTED"
	CycleCompleted EventType = "CYCLE_COMPLETED"
	CycleFailed    EventType = "CYCLE_FAILED"
	SignalsReady   EventType = "SIGNALS_READY"
	DecisionMade   EventType = "DECISION_MADE"
	TradeExecuted  EventType = "TRADE_EXECUTED"
	CircuitOpened  EventType = "CIRCUIT_OPENED"
	SchedulerState EventType = "SCHEDULER_STATE"
)

// Event is one emitted event with its payload
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Manager fans events out to subscribers. Slow subscribers drop events
// rather than blocking emitters.
type Manager struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	log         zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[int]chan Event),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Emit publishes an event to all subscribers. Non-blocking.
func (m *Manager) Emit(eventType EventType, source string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.log.Warn().
				Int("subscriber", id).
				Str("event", string(eventType)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with an unsubscribe function.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	ch := make(chan Event, 64)
	m.subscribers[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}
