package domain

import (
	"context"
	"time"
)

// ListFilter narrows a transaction listing.
type ListFilter struct {
	PrincipalID string
	State       *State
	Limit       int
}

// Summary aggregates the transaction store for operators.
type Summary struct {
	Total          int
	ByState        map[State]int
	PendingGrants  int
	CapturedAmount int64
}

// TransactionRepository persists transactions keyed by gateway id.
type TransactionRepository interface {
	// FindByID returns ErrTransactionNotFound when absent.
	FindByID(ctx context.Context, id string) (*Transaction, error)

	// Create inserts a new transaction and returns ErrTransactionExists if
	// the id is already taken.
	Create(ctx context.Context, t *Transaction) error

	// Update writes t only if the stored version still equals t.Version().
	// On success the version is incremented; otherwise ErrConcurrentModification.
	Update(ctx context.Context, t *Transaction) error

	// ListPendingGrants returns performed transactions whose grant is still
	// pending and that were performed before the cutoff, oldest first.
	ListPendingGrants(ctx context.Context, performedBefore time.Time, limit int) ([]*Transaction, error)

	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	Summarize(ctx context.Context) (Summary, error)
}

// SubscriptionRepository defines access for subscription persistence.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, subscription *Subscription) error
	// FindByPrincipalID returns nil, nil when the principal has no subscription.
	FindByPrincipalID(ctx context.Context, principalID string) (*Subscription, error)
}
