package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carepay/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is one row of the outbox table. EventType and RoutingKey are the
// same value today; the broker routes on RoutingKey.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	RoutingKey    string
	Payload       json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time

	// Delivery state
	PublishedAt      *time.Time
	RetryCount       int
	NextRetryAt      *time.Time
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage serialises event and its metadata into an unsaved Message.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.RoutingKey(), err)
	}
	meta, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", event.RoutingKey(), err)
	}

	key := event.RoutingKey()
	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     key,
		RoutingKey:    key,
		Payload:       payload,
		Metadata:      meta,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// NewMessages converts events in order and stops at the first failure.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, len(events))
	for i, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs[i] = msg
	}
	return msgs, nil
}

func (m *Message) IsPublished() bool { return m.PublishedAt != nil }

// pending reports whether the relay should pick m up at now.
func (m *Message) pending(now time.Time) bool {
	if m.PublishedAt != nil || m.DeadLetteredAt != nil {
		return false
	}
	return m.NextRetryAt == nil || !m.NextRetryAt.After(now)
}
