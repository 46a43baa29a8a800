package monitor

import (
	"time"

	"github.com/google/uuid"
)

// Event is the contract for everything published on the internal bus:
// lifecycle notifications from the domain services (ingest, rule changes,
// alert firing) as well as engine bookkeeping.
type Event interface {
	Type() string
	Domain() string
	Payload() any
	Timestamp() time.Time
	CorrelationID() string
}

// ChangeEvent is the standard bus event emitted by the domain services.
type ChangeEvent struct {
	EventType     string    `json:"event_type"`
	EventDomain   string    `json:"domain"`
	EventPayload  any       `json:"payload,omitempty"`
	EventTime     time.Time `json:"timestamp"`
	CorrelationId string    `json:"correlation_id"`
}

// NewChangeEvent builds a ChangeEvent stamped with the current time and a
// fresh correlation ID.
func NewChangeEvent(domain, eventType string, payload any) *ChangeEvent {
	return &ChangeEvent{
		EventType:     eventType,
		EventDomain:   domain,
		EventPayload:  payload,
		EventTime:     time.Now(),
		CorrelationId: uuid.New().String(),
	}
}

func (e *ChangeEvent) Type() string          { return e.EventType }
func (e *ChangeEvent) Domain() string        { return e.EventDomain }
func (e *ChangeEvent) Payload() any          { return e.EventPayload }
func (e *ChangeEvent) Timestamp() time.Time  { return e.EventTime }
func (e *ChangeEvent) CorrelationID() string { return e.CorrelationId }

// Publisher is implemented by the event bus. Services hold the interface so
// tests can substitute a recorder, and a nil-safe noop exists for wiring
// without a bus.
type Publisher interface {
	Publish(event Event) error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) error { return nil }

var _ Publisher = (*NoopPublisher)(nil)
