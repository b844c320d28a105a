package commands

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
)

// PerformTransactionCommand captures a created transaction.
type PerformTransactionCommand struct {
	ID string
}

func (PerformTransactionCommand) CommandName() string { return "billing.perform_transaction" }

// PerformTransactionResult is the protocol view of a performed transaction.
type PerformTransactionResult struct {
	PerformTime   int64
	TransactionID string
	State         domain.State
	Replayed      bool
}

// PerformTransactionHandler handles PerformTransactionCommand in two steps.
// Step one marks the transaction performed with its grant pending. Step two
// hands it to the EntitlementGranter. If step two fails the error is returned
// and the transaction stays pending, so a redelivery or the reconciler can
// finish it.
type PerformTransactionHandler struct {
	transactions domain.TransactionRepository
	granter      *EntitlementGranter
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	clock        Clock
	logger       *slog.Logger
}

// NewPerformTransactionHandler creates a new PerformTransactionHandler.
func NewPerformTransactionHandler(
	transactions domain.TransactionRepository,
	granter *EntitlementGranter,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *PerformTransactionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PerformTransactionHandler{
		transactions: transactions,
		granter:      granter,
		outboxRepo:   outboxRepo,
		uow:          uow,
		clock:        systemClock,
		logger:       logger,
	}
}

// WithClock overrides the time source.
func (h *PerformTransactionHandler) WithClock(clock Clock) *PerformTransactionHandler {
	h.clock = clock
	return h
}

// Handle executes the PerformTransactionCommand.
func (h *PerformTransactionHandler) Handle(ctx context.Context, cmd PerformTransactionCommand) (PerformTransactionResult, error) {
	var (
		result       PerformTransactionResult
		grantPending bool
	)

	err := sharedApplication.WithUnitOfWorkRetry(ctx, h.uow, sharedApplication.DefaultConflictAttempts, domain.ErrConcurrentModification,
		func(txCtx context.Context) error {
			t, err := h.transactions.FindByID(txCtx, cmd.ID)
			if err != nil {
				return err
			}

			replayed := t.IsPerformed()
			if !replayed {
				if err := t.Perform(h.clock()); err != nil {
					return err
				}
				if err := h.transactions.Update(txCtx, t); err != nil {
					return err
				}
				if err := recordEvents(txCtx, h.outboxRepo, t.PrincipalID(), t); err != nil {
					return err
				}
			}

			grantPending = t.IsGrantPending()
			result = PerformTransactionResult{
				PerformTime:   t.PerformedAt().UnixMilli(),
				TransactionID: t.ID(),
				State:         t.State(),
				Replayed:      replayed,
			}
			return nil
		})
	if err != nil {
		return PerformTransactionResult{}, err
	}

	if !result.Replayed {
		h.logger.InfoContext(ctx, "transaction performed", "transaction", cmd.ID)
	}

	if grantPending {
		if _, err := h.granter.Grant(ctx, cmd.ID); err != nil {
			h.logger.ErrorContext(ctx, "transaction performed but entitlement not granted",
				"transaction", cmd.ID,
				"error", err,
			)
			return PerformTransactionResult{}, err
		}
	}
	return result, nil
}
