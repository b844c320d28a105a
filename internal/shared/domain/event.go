package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate. RoutingKey doubles as the
// event type on the broker, e.g. "billing.transaction.performed".
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() string
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata links an event to the request that caused it.
type EventMetadata struct {
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	PrincipalID   string
}

// BaseEvent is embedded by concrete events. Its fields are unexported so
// payload structs marshal only their own fields.
type BaseEvent struct {
	id            uuid.UUID
	aggregateID   string
	aggregateType string
	routingKey    string
	at            time.Time
	meta          EventMetadata
}

func NewBaseEvent(aggregateID, aggregateType, routingKey string) BaseEvent {
	return BaseEvent{
		id:            uuid.New(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		routingKey:    routingKey,
		at:            time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() string     { return e.aggregateID }
func (e BaseEvent) AggregateType() string   { return e.aggregateType }
func (e BaseEvent) RoutingKey() string      { return e.routingKey }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

// SetMetadata is called once by the application layer before the event is
// written to the outbox.
func (e *BaseEvent) SetMetadata(meta EventMetadata) { e.meta = meta }
