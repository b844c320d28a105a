package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"
)

const (
	AggregateType = "Transaction"

	RoutingKeyTransactionCreated   = "billing.transaction.created"
	RoutingKeyTransactionPerformed = "billing.transaction.performed"
	RoutingKeyTransactionCancelled = "billing.transaction.cancelled"
	RoutingKeyEntitlementGranted   = "billing.entitlement.granted"
	RoutingKeyEntitlementRevoked   = "billing.entitlement.revoked"
)

// TransactionCreated is emitted when the gateway opens a transaction.
type TransactionCreated struct {
	sharedDomain.BaseEvent
	TransactionID string    `json:"transaction_id"`
	PrincipalID   string    `json:"principal_id"`
	Plan          string    `json:"plan"`
	Amount        int64     `json:"amount"`
	Provider      string    `json:"provider"`
	CreateTime    time.Time `json:"create_time"`
}

// NewTransactionCreated creates a TransactionCreated event.
func NewTransactionCreated(t *Transaction) *TransactionCreated {
	return &TransactionCreated{
		BaseEvent:     sharedDomain.NewBaseEvent(t.ID(), AggregateType, RoutingKeyTransactionCreated),
		TransactionID: t.ID(),
		PrincipalID:   t.principalID,
		Plan:          t.plan.String(),
		Amount:        t.amount,
		Provider:      t.provider,
		CreateTime:    t.CreatedAt(),
	}
}

// TransactionPerformed is emitted when funds are captured.
type TransactionPerformed struct {
	sharedDomain.BaseEvent
	TransactionID string    `json:"transaction_id"`
	PrincipalID   string    `json:"principal_id"`
	Plan          string    `json:"plan"`
	Amount        int64     `json:"amount"`
	PerformTime   time.Time `json:"perform_time"`
}

// NewTransactionPerformed creates a TransactionPerformed event.
func NewTransactionPerformed(t *Transaction) *TransactionPerformed {
	return &TransactionPerformed{
		BaseEvent:     sharedDomain.NewBaseEvent(t.ID(), AggregateType, RoutingKeyTransactionPerformed),
		TransactionID: t.ID(),
		PrincipalID:   t.principalID,
		Plan:          t.plan.String(),
		Amount:        t.amount,
		PerformTime:   *t.performedAt,
	}
}

// TransactionCancelled is emitted on either cancellation path.
type TransactionCancelled struct {
	sharedDomain.BaseEvent
	TransactionID string    `json:"transaction_id"`
	PrincipalID   string    `json:"principal_id"`
	State         int       `json:"state"`
	Reason        int       `json:"reason"`
	CancelTime    time.Time `json:"cancel_time"`
}

// NewTransactionCancelled creates a TransactionCancelled event.
func NewTransactionCancelled(t *Transaction) *TransactionCancelled {
	return &TransactionCancelled{
		BaseEvent:     sharedDomain.NewBaseEvent(t.ID(), AggregateType, RoutingKeyTransactionCancelled),
		TransactionID: t.ID(),
		PrincipalID:   t.principalID,
		State:         int(t.state),
		Reason:        *t.cancelReason,
		CancelTime:    *t.cancelledAt,
	}
}

// EntitlementGranted is emitted once the principal holds the purchased plan.
type EntitlementGranted struct {
	sharedDomain.BaseEvent
	TransactionID string `json:"transaction_id"`
	PrincipalID   string `json:"principal_id"`
	Plan          string `json:"plan"`
}

// NewEntitlementGranted creates an EntitlementGranted event.
func NewEntitlementGranted(t *Transaction) *EntitlementGranted {
	return &EntitlementGranted{
		BaseEvent:     sharedDomain.NewBaseEvent(t.ID(), AggregateType, RoutingKeyEntitlementGranted),
		TransactionID: t.ID(),
		PrincipalID:   t.principalID,
		Plan:          t.plan.String(),
	}
}

// EntitlementRevoked is emitted when a performed transaction is refunded.
type EntitlementRevoked struct {
	sharedDomain.BaseEvent
	TransactionID string `json:"transaction_id"`
	PrincipalID   string `json:"principal_id"`
	Plan          string `json:"plan"`
}

// NewEntitlementRevoked creates an EntitlementRevoked event.
func NewEntitlementRevoked(t *Transaction) *EntitlementRevoked {
	return &EntitlementRevoked{
		BaseEvent:     sharedDomain.NewBaseEvent(t.ID(), AggregateType, RoutingKeyEntitlementRevoked),
		TransactionID: t.ID(),
		PrincipalID:   t.principalID,
		Plan:          t.plan.String(),
	}
}
