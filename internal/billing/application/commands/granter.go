package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
)

// ErrGrantFailed marks a performed transaction whose entitlement could not be
// applied. The transaction stays pending and the grant is retried later.
var ErrGrantFailed = errors.New("entitlement grant failed")

// EntitlementGranter applies the second step of a perform: it gives the
// principal the purchased plan, renews the subscription record and flips the
// transaction's grant status to granted, all in one unit of work.
type EntitlementGranter struct {
	transactions  domain.TransactionRepository
	principals    identity.PrincipalRepository
	subscriptions domain.SubscriptionRepository
	outboxRepo    outbox.Repository
	uow           sharedApplication.UnitOfWork
	period        time.Duration
	clock         Clock
	logger        *slog.Logger
}

// NewEntitlementGranter creates a granter. A zero period uses the default.
func NewEntitlementGranter(
	transactions domain.TransactionRepository,
	principals identity.PrincipalRepository,
	subscriptions domain.SubscriptionRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	period time.Duration,
	logger *slog.Logger,
) *EntitlementGranter {
	if logger == nil {
		logger = slog.Default()
	}
	if period <= 0 {
		period = domain.DefaultSubscriptionPeriod
	}
	return &EntitlementGranter{
		transactions:  transactions,
		principals:    principals,
		subscriptions: subscriptions,
		outboxRepo:    outboxRepo,
		uow:           uow,
		period:        period,
		clock:         systemClock,
		logger:        logger,
	}
}

// WithClock overrides the time source.
func (g *EntitlementGranter) WithClock(clock Clock) *EntitlementGranter {
	g.clock = clock
	return g
}

// Grant completes the grant of transaction id. It returns true when this call
// applied the grant and false when there was nothing pending.
func (g *EntitlementGranter) Grant(ctx context.Context, id string) (bool, error) {
	var granted bool
	err := sharedApplication.WithUnitOfWorkRetry(ctx, g.uow, sharedApplication.DefaultConflictAttempts, domain.ErrConcurrentModification,
		func(txCtx context.Context) error {
			granted = false

			t, err := g.transactions.FindByID(txCtx, id)
			if err != nil {
				return err
			}
			if !t.IsGrantPending() {
				return nil
			}

			principal, err := g.principals.FindByID(txCtx, t.PrincipalID())
			if err != nil {
				return err
			}
			principal.Grant(t.Plan())
			if err := g.principals.UpdateEntitlement(txCtx, principal); err != nil {
				return err
			}

			now := g.clock()
			sub, err := g.subscriptions.FindByPrincipalID(txCtx, t.PrincipalID())
			if err != nil {
				return err
			}
			if sub == nil {
				sub = domain.NewSubscription(t.PrincipalID(), now)
			}
			sub.Activate(t, now, g.period)
			if err := g.subscriptions.Upsert(txCtx, sub); err != nil {
				return err
			}

			if err := t.MarkGranted(); err != nil {
				return err
			}
			if err := g.transactions.Update(txCtx, t); err != nil {
				return err
			}
			if err := recordEvents(txCtx, g.outboxRepo, t.PrincipalID(), t, principal); err != nil {
				return err
			}
			granted = true
			return nil
		})
	if err != nil {
		return false, fmt.Errorf("%w: transaction %s: %w", ErrGrantFailed, id, err)
	}
	if granted {
		g.logger.InfoContext(ctx, "entitlement granted", "transaction", id)
	}
	return granted, nil
}
