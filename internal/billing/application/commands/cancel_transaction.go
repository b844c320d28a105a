package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
)

// CancelTransactionCommand cancels a transaction.
type CancelTransactionCommand struct {
	ID     string
	Reason int
}

func (CancelTransactionCommand) CommandName() string { return "billing.cancel_transaction" }

// CancelTransactionResult is the protocol view of a cancelled transaction.
type CancelTransactionResult struct {
	CancelTime    int64
	TransactionID string
	State         domain.State
	Replayed      bool
	// Reverted is true when the principal lost the plan in this call.
	Reverted bool
}

// CancelTransactionHandler handles CancelTransactionCommand. Cancelling a
// performed transaction reverts the principal to the free plan in the same
// unit of work, unless the policy rejects post-capture cancellation.
type CancelTransactionHandler struct {
	transactions  domain.TransactionRepository
	principals    identity.PrincipalRepository
	subscriptions domain.SubscriptionRepository
	outboxRepo    outbox.Repository
	uow           sharedApplication.UnitOfWork
	policy        domain.CancelPolicy
	clock         Clock
	logger        *slog.Logger
}

// NewCancelTransactionHandler creates a new CancelTransactionHandler.
func NewCancelTransactionHandler(
	transactions domain.TransactionRepository,
	principals identity.PrincipalRepository,
	subscriptions domain.SubscriptionRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	policy domain.CancelPolicy,
	logger *slog.Logger,
) *CancelTransactionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = domain.CancelPolicyRefund
	}
	return &CancelTransactionHandler{
		transactions:  transactions,
		principals:    principals,
		subscriptions: subscriptions,
		outboxRepo:    outboxRepo,
		uow:           uow,
		policy:        policy,
		clock:         systemClock,
		logger:        logger,
	}
}

// WithClock overrides the time source.
func (h *CancelTransactionHandler) WithClock(clock Clock) *CancelTransactionHandler {
	h.clock = clock
	return h
}

// Handle executes the CancelTransactionCommand.
func (h *CancelTransactionHandler) Handle(ctx context.Context, cmd CancelTransactionCommand) (CancelTransactionResult, error) {
	var result CancelTransactionResult

	err := sharedApplication.WithUnitOfWorkRetry(ctx, h.uow, sharedApplication.DefaultConflictAttempts, domain.ErrConcurrentModification,
		func(txCtx context.Context) error {
			result = CancelTransactionResult{}

			t, err := h.transactions.FindByID(txCtx, cmd.ID)
			if err != nil {
				return err
			}

			if t.State().IsCancelled() {
				result = cancelResult(t, true)
				return nil
			}
			if err := h.policy.AllowsCancel(t); err != nil {
				return err
			}

			wasPerformed := t.IsPerformed()
			now := h.clock()
			if err := t.Cancel(cmd.Reason, now); err != nil {
				return err
			}
			if err := h.transactions.Update(txCtx, t); err != nil {
				return err
			}

			aggregates := []sharedDomain.AggregateRoot{t}
			if wasPerformed {
				principal, err := h.revert(txCtx, t)
				if err != nil {
					return err
				}
				if principal != nil {
					aggregates = append(aggregates, principal)
					result.Reverted = true
				}
			}
			if err := recordEvents(txCtx, h.outboxRepo, t.PrincipalID(), aggregates...); err != nil {
				return err
			}

			reverted := result.Reverted
			result = cancelResult(t, false)
			result.Reverted = reverted
			return nil
		})
	if err != nil {
		return CancelTransactionResult{}, err
	}

	if !result.Replayed {
		h.logger.InfoContext(ctx, "transaction cancelled",
			"transaction", cmd.ID,
			"state", int(result.State),
			"reason", cmd.Reason,
			"reverted", result.Reverted,
		)
	}
	return result, nil
}

// revert returns the principal to the free plan and closes the subscription
// funded by t. A principal that no longer exists has nothing to revert.
func (h *CancelTransactionHandler) revert(ctx context.Context, t *domain.Transaction) (*identity.Principal, error) {
	principal, err := h.principals.FindByID(ctx, t.PrincipalID())
	if errors.Is(err, identity.ErrPrincipalNotFound) {
		h.logger.WarnContext(ctx, "refund for unknown principal",
			"transaction", t.ID(),
			"principal_id", t.PrincipalID(),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	principal.Revoke()
	if err := h.principals.UpdateEntitlement(ctx, principal); err != nil {
		return nil, err
	}

	sub, err := h.subscriptions.FindByPrincipalID(ctx, t.PrincipalID())
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Cancel(t, h.clock()) {
		if err := h.subscriptions.Upsert(ctx, sub); err != nil {
			return nil, err
		}
	}
	return principal, nil
}

func cancelResult(t *domain.Transaction, replayed bool) CancelTransactionResult {
	return CancelTransactionResult{
		CancelTime:    t.CancelledAt().UnixMilli(),
		TransactionID: t.ID(),
		State:         t.State(),
		Replayed:      replayed,
	}
}
