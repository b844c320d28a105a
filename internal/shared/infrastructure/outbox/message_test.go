package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/carepay/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	domain.BaseEvent
	TransactionID string `json:"transaction_id"`
}

func newTestEvent(transactionID string) *testEvent {
	return &testEvent{
		BaseEvent:     domain.NewBaseEvent(transactionID, "Transaction", "billing.transaction.created"),
		TransactionID: transactionID,
	}
}

func TestNewMessage(t *testing.T) {
	event := newTestEvent("tx1")
	event.SetMetadata(domain.EventMetadata{CorrelationID: uuid.New(), PrincipalID: "u1"})

	msg, err := NewMessage(event)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "Transaction", msg.AggregateType)
	assert.Equal(t, "tx1", msg.AggregateID)
	assert.Equal(t, "billing.transaction.created", msg.RoutingKey)
	assert.Equal(t, event.OccurredAt(), msg.CreatedAt)
	assert.JSONEq(t, `{"transaction_id":"tx1"}`, string(msg.Payload))
	assert.False(t, msg.IsPublished())

	var metadata domain.EventMetadata
	require.NoError(t, json.Unmarshal(msg.Metadata, &metadata))
	assert.Equal(t, "u1", metadata.PrincipalID)
}

func TestNewMessages(t *testing.T) {
	msgs, err := NewMessages([]domain.DomainEvent{newTestEvent("tx1"), newTestEvent("tx2")})

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "tx2", msgs[1].AggregateID)
}

func TestMessage_Pending(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	assert.True(t, (&Message{}).pending(now))
	assert.True(t, (&Message{NextRetryAt: &earlier}).pending(now))
	assert.False(t, (&Message{NextRetryAt: &later}).pending(now))
	assert.False(t, (&Message{PublishedAt: &earlier}).pending(now))
	assert.False(t, (&Message{DeadLetteredAt: &earlier}).pending(now))
}
