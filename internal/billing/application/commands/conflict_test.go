package commands

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingTransactions writes the update and then reports a lost version race
// for the first conflicts calls, so the unit of work has to roll the write back.
type racingTransactions struct {
	domain.TransactionRepository
	conflicts int
	updates   int
}

func (r *racingTransactions) Update(ctx context.Context, t *domain.Transaction) error {
	r.updates++
	if err := r.TransactionRepository.Update(ctx, t); err != nil {
		return err
	}
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrConcurrentModification
	}
	return nil
}

func TestPerformTransaction_RetriesAfterConflict(t *testing.T) {
	env := newBillingEnv(t, domain.CancelPolicyRefund)
	ctx := context.Background()
	env.createTx(t, "tx1")

	racing := &racingTransactions{TransactionRepository: env.transactions, conflicts: 1}
	perform := NewPerformTransactionHandler(racing, env.granter, env.outbox, env.uow, nil).
		WithClock(func() time.Time { return env.now })

	result, err := perform.Handle(ctx, PerformTransactionCommand{ID: "tx1"})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, domain.StatePerformed, result.State)
	assert.Equal(t, 2, racing.updates)

	assert.True(t, env.principal(t).HasActivePlan(identity.PlanPro))
	assert.Equal(t, 1, env.principals.updates)
	assert.Equal(t, []string{
		domain.RoutingKeyTransactionCreated,
		domain.RoutingKeyTransactionPerformed,
		domain.RoutingKeyEntitlementGranted,
	}, env.routingKeys(t, "tx1"))
}

func TestPerformTransaction_GivesUpAfterRepeatedConflicts(t *testing.T) {
	env := newBillingEnv(t, domain.CancelPolicyRefund)
	ctx := context.Background()
	env.createTx(t, "tx1")

	racing := &racingTransactions{TransactionRepository: env.transactions, conflicts: 10}
	perform := NewPerformTransactionHandler(racing, env.granter, env.outbox, env.uow, nil)

	_, err := perform.Handle(ctx, PerformTransactionCommand{ID: "tx1"})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, sharedApplication.DefaultConflictAttempts, racing.updates)

	stored, err := env.transactions.FindByID(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCreated, stored.State())
	assert.Equal(t, identity.PlanFree, env.principal(t).Plan())
	assert.Equal(t, []string{domain.RoutingKeyTransactionCreated}, env.routingKeys(t, "tx1"))
}

func TestCancelTransaction_RetriesAfterConflict(t *testing.T) {
	env := newBillingEnv(t, domain.CancelPolicyRefund)
	ctx := context.Background()
	env.createTx(t, "tx1")
	_, err := env.perform.Handle(ctx, PerformTransactionCommand{ID: "tx1"})
	require.NoError(t, err)

	racing := &racingTransactions{TransactionRepository: env.transactions, conflicts: 1}
	cancel := NewCancelTransactionHandler(racing, env.principals, env.subscriptions, env.outbox, env.uow, domain.CancelPolicyRefund, nil).
		WithClock(func() time.Time { return env.now })

	result, err := cancel.Handle(ctx, CancelTransactionCommand{ID: "tx1", Reason: 5})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.True(t, result.Reverted)
	assert.Equal(t, domain.StateCancelledAfterPerform, result.State)
	assert.Equal(t, 2, racing.updates)

	p := env.principal(t)
	assert.Equal(t, identity.PlanFree, p.Plan())
	assert.Equal(t, identity.SubscriptionCanceled, p.SubscriptionStatus())
	assert.Equal(t, []string{
		domain.RoutingKeyTransactionCreated,
		domain.RoutingKeyTransactionPerformed,
		domain.RoutingKeyEntitlementGranted,
		domain.RoutingKeyTransactionCancelled,
		domain.RoutingKeyEntitlementRevoked,
	}, env.routingKeys(t, "tx1"))
}
