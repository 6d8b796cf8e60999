package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event emitted for telemetry. Events are not
// required for correctness; consumers may be absent.
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher manages event subscriptions and publishing
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers
func (d *EventDispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if handlers, ok := d.handlers[event.EventType()]; ok {
		for _, h := range handlers {
			h(event)
		}
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}

// -----------------------------------------------------------------------------
// Guidance Events
// -----------------------------------------------------------------------------

// EscalatedEvent is published when a ladder advances a rung
type EscalatedEvent struct {
	BaseEvent
	LearnerID string  `json:"learner_id"`
	ProblemID string  `json:"problem_id"`
	FromRung  Rung    `json:"from_rung"`
	ToRung    Rung    `json:"to_rung"`
	Trigger   Trigger `json:"trigger"`
	Evidence  string  `json:"evidence,omitempty"`
}

// NewEscalatedEvent creates an escalation event from a recorded transition
func NewEscalatedEvent(learnerID, problemID string, esc Escalation) EscalatedEvent {
	return EscalatedEvent{
		BaseEvent: NewBaseEvent("guidance.escalated"),
		LearnerID: learnerID,
		ProblemID: problemID,
		FromRung:  esc.FromRung,
		ToRung:    esc.ToRung,
		Trigger:   esc.Trigger,
		Evidence:  esc.Evidence,
	}
}

// BanditUpdatedEvent is published when an arm posterior absorbs a reward
type BanditUpdatedEvent struct {
	BaseEvent
	LearnerID string  `json:"learner_id"`
	ArmID     string  `json:"arm_id"`
	Reward    float64 `json:"reward"`
	PullCount int     `json:"pull_count"`
}

// NewBanditUpdatedEvent creates a bandit update event
func NewBanditUpdatedEvent(learnerID, armID string, reward float64, pullCount int) BanditUpdatedEvent {
	return BanditUpdatedEvent{
		BaseEvent: NewBaseEvent("guidance.bandit_updated"),
		LearnerID: learnerID,
		ArmID:     armID,
		Reward:    reward,
		PullCount: pullCount,
	}
}
