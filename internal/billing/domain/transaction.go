package domain

import (
	"fmt"
	"strings"
	"time"

	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"
)

// ProviderPayme tags transactions issued by the Payme merchant API.
const ProviderPayme = "payme"

// State is the gateway's lifecycle code for a transaction.
type State int

const (
	StateCreated               State = 1
	StatePerformed             State = 2
	StateCancelled             State = -1
	StateCancelledAfterPerform State = -2
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePerformed:
		return "performed"
	case StateCancelled:
		return "cancelled"
	case StateCancelledAfterPerform:
		return "cancelled_after_perform"
	default:
		return "unknown"
	}
}

// IsCancelled reports whether s is either cancelled state.
func (s State) IsCancelled() bool {
	return s == StateCancelled || s == StateCancelledAfterPerform
}

// ParseState accepts either the numeric code or the state name.
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range []State{StateCreated, StatePerformed, StateCancelled, StateCancelledAfterPerform} {
		if v == s.String() || v == fmt.Sprint(int(s)) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown state %q", ErrInvalidStateTransition, v)
}

// GrantStatus tracks the entitlement side effect of a performed transaction.
// A performed transaction whose grant is still pending has captured funds
// but the principal has not yet received the plan.
type GrantStatus string

const (
	GrantNone    GrantStatus = "none"
	GrantPending GrantStatus = "pending"
	GrantGranted GrantStatus = "granted"
	GrantRevoked GrantStatus = "revoked"
)

// Transaction is a single payment attempt identified by the gateway-issued id.
type Transaction struct {
	sharedDomain.BaseAggregateRoot
	principalID  string
	plan         identity.Plan
	amount       int64
	state        State
	provider     string
	grantStatus  GrantStatus
	cancelReason *int
	performedAt  *time.Time
	cancelledAt  *time.Time
}

// NewTransaction records a transaction in the Created state. createdAt is the
// gateway-supplied creation instant, not the server clock.
func NewTransaction(id, principalID string, plan identity.Plan, amount int64, provider string, createdAt time.Time) (*Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidTransactionID
	}
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidAccount
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if provider == "" {
		provider = ProviderPayme
	}

	t := &Transaction{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(id, createdAt.UTC()),
		principalID:       principalID,
		plan:              plan,
		amount:            amount,
		state:             StateCreated,
		provider:          provider,
		grantStatus:       GrantNone,
	}
	t.AddDomainEvent(NewTransactionCreated(t))
	return t, nil
}

// TransactionSnapshot carries persisted transaction state.
type TransactionSnapshot struct {
	ID           string
	PrincipalID  string
	Plan         identity.Plan
	Amount       int64
	State        State
	Provider     string
	GrantStatus  GrantStatus
	CancelReason *int
	CreatedAt    time.Time
	PerformedAt  *time.Time
	CancelledAt  *time.Time
	UpdatedAt    time.Time
	Version      int
}

// RehydrateTransaction recreates a transaction from persisted state.
func RehydrateTransaction(s TransactionSnapshot) *Transaction {
	return &Transaction{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt), s.Version,
		),
		principalID:  s.PrincipalID,
		plan:         s.Plan,
		amount:       s.Amount,
		state:        s.State,
		provider:     s.Provider,
		grantStatus:  s.GrantStatus,
		cancelReason: s.CancelReason,
		performedAt:  s.PerformedAt,
		cancelledAt:  s.CancelledAt,
	}
}

func (t *Transaction) PrincipalID() string      { return t.principalID }
func (t *Transaction) Plan() identity.Plan      { return t.plan }
func (t *Transaction) Amount() int64            { return t.amount }
func (t *Transaction) State() State             { return t.state }
func (t *Transaction) Provider() string         { return t.provider }
func (t *Transaction) GrantStatus() GrantStatus { return t.grantStatus }
func (t *Transaction) CancelReason() *int       { return t.cancelReason }
func (t *Transaction) PerformedAt() *time.Time  { return t.performedAt }
func (t *Transaction) CancelledAt() *time.Time  { return t.cancelledAt }
func (t *Transaction) IsPerformed() bool        { return t.state == StatePerformed }
func (t *Transaction) IsGrantPending() bool     { return t.state == StatePerformed && t.grantStatus == GrantPending }

// Perform captures the transaction. The entitlement grant is left pending
// until MarkGranted. Performing an already performed transaction is a no-op.
func (t *Transaction) Perform(now time.Time) error {
	switch t.state {
	case StatePerformed:
		return nil
	case StateCreated:
	default:
		return fmt.Errorf("%w: perform from %s", ErrInvalidStateTransition, t.state)
	}

	at := now.UTC()
	t.state = StatePerformed
	t.performedAt = &at
	t.grantStatus = GrantPending
	t.Touch()
	t.AddDomainEvent(NewTransactionPerformed(t))
	return nil
}

// MarkGranted records that the principal received the purchased plan.
func (t *Transaction) MarkGranted() error {
	if t.state != StatePerformed {
		return fmt.Errorf("%w: grant in state %s", ErrGrantNotPending, t.state)
	}
	switch t.grantStatus {
	case GrantGranted:
		return nil
	case GrantPending:
	default:
		return fmt.Errorf("%w: grant status %s", ErrGrantNotPending, t.grantStatus)
	}

	t.grantStatus = GrantGranted
	t.Touch()
	t.AddDomainEvent(NewEntitlementGranted(t))
	return nil
}

// CancelTarget returns the state Cancel would move to.
func (t *Transaction) CancelTarget() State {
	if t.state == StateCreated {
		return StateCancelled
	}
	return StateCancelledAfterPerform
}

// Cancel cancels the transaction. A Created transaction moves to -1; a
// Performed one moves to -2 and its grant is revoked. Cancelling an already
// cancelled transaction is a no-op.
func (t *Transaction) Cancel(reason int, now time.Time) error {
	if t.state.IsCancelled() {
		return nil
	}

	wasPerformed := t.state == StatePerformed
	at := now.UTC()
	r := reason

	t.state = t.CancelTarget()
	t.cancelledAt = &at
	t.cancelReason = &r
	if wasPerformed {
		t.grantStatus = GrantRevoked
	}
	t.Touch()

	t.AddDomainEvent(NewTransactionCancelled(t))
	if wasPerformed {
		t.AddDomainEvent(NewEntitlementRevoked(t))
	}
	return nil
}

// Snapshot exports the transaction state for persistence.
func (t *Transaction) Snapshot() TransactionSnapshot {
	return TransactionSnapshot{
		ID:           t.ID(),
		PrincipalID:  t.principalID,
		Plan:         t.plan,
		Amount:       t.amount,
		State:        t.state,
		Provider:     t.provider,
		GrantStatus:  t.grantStatus,
		CancelReason: t.cancelReason,
		CreatedAt:    t.CreatedAt(),
		PerformedAt:  t.performedAt,
		CancelledAt:  t.cancelledAt,
		UpdatedAt:    t.UpdatedAt(),
		Version:      t.Version(),
	}
}
