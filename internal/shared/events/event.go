package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event dispatched on the in-process bus.
type Event interface {
	// EventID returns the unique identifier of this event instance.
	EventID() uuid.UUID
	// EventType returns the event type name used for handler routing.
	EventType() string
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
}

// Handler processes domain events.
type Handler interface {
	// Handles returns the event types this handler subscribes to.
	Handles() []string
	// Handle processes a single event. Errors are logged by the bus, not
	// propagated to the publisher.
	Handle(event Event) error
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Aggregate  string    `json:"aggregate"`
	OccurredOn time.Time `json:"occurred_on"`
}

// NewBaseEvent creates a BaseEvent.
func NewBaseEvent(eventType, aggregate string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Aggregate:  aggregate,
		OccurredOn: time.Now(),
	}
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.OccurredOn }
