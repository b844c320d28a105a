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

// CreateTransactionCommand opens a gateway transaction.
type CreateTransactionCommand struct {
	ID          string
	PrincipalID string
	Plan        string
	Amount      int64
	// Time is the gateway-supplied creation instant in epoch milliseconds.
	Time     int64
	Provider string
}

func (CreateTransactionCommand) CommandName() string { return "billing.create_transaction" }

// CreateTransactionResult is the protocol view of a created transaction.
type CreateTransactionResult struct {
	CreateTime    int64
	TransactionID string
	State         domain.State
	// Replayed is true when the transaction already existed.
	Replayed bool
}

// CreateTransactionHandler handles CreateTransactionCommand.
type CreateTransactionHandler struct {
	transactions domain.TransactionRepository
	principals   identity.PrincipalRepository
	prices       domain.PriceTable
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	logger       *slog.Logger
}

// NewCreateTransactionHandler creates a new CreateTransactionHandler.
func NewCreateTransactionHandler(
	transactions domain.TransactionRepository,
	principals identity.PrincipalRepository,
	prices domain.PriceTable,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *CreateTransactionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateTransactionHandler{
		transactions: transactions,
		principals:   principals,
		prices:       prices,
		outboxRepo:   outboxRepo,
		uow:          uow,
		logger:       logger,
	}
}

// Handle creates the transaction, or replays an existing Created one.
// A concurrent insert of the same id is retried and resolves as a replay.
func (h *CreateTransactionHandler) Handle(ctx context.Context, cmd CreateTransactionCommand) (CreateTransactionResult, error) {
	var result CreateTransactionResult

	err := sharedApplication.WithUnitOfWorkRetry(ctx, h.uow, sharedApplication.DefaultConflictAttempts, domain.ErrTransactionExists,
		func(txCtx context.Context) error {
			existing, err := h.transactions.FindByID(txCtx, cmd.ID)
			switch {
			case err == nil:
				if existing.State() != domain.StateCreated {
					return fmt.Errorf("%w: transaction %s is %s", domain.ErrInvalidStateTransition, cmd.ID, existing.State())
				}
				result = createResult(existing, true)
				return nil
			case !errors.Is(err, domain.ErrTransactionNotFound):
				return err
			}

			plan, err := domain.ValidatePurchase(txCtx, h.principals, h.prices, cmd.PrincipalID, cmd.Plan, cmd.Amount)
			if err != nil {
				return err
			}

			t, err := domain.NewTransaction(cmd.ID, cmd.PrincipalID, plan, cmd.Amount, cmd.Provider, time.UnixMilli(cmd.Time))
			if err != nil {
				return err
			}
			if err := h.transactions.Create(txCtx, t); err != nil {
				return err
			}
			if err := recordEvents(txCtx, h.outboxRepo, cmd.PrincipalID, t); err != nil {
				return err
			}
			result = createResult(t, false)
			return nil
		})
	if err != nil {
		return CreateTransactionResult{}, err
	}

	if !result.Replayed {
		h.logger.InfoContext(ctx, "transaction created",
			"transaction", cmd.ID,
			"principal_id", cmd.PrincipalID,
			"plan", cmd.Plan,
			"amount", cmd.Amount,
		)
	}
	return result, nil
}

func createResult(t *domain.Transaction, replayed bool) CreateTransactionResult {
	return CreateTransactionResult{
		CreateTime:    t.CreatedAt().UnixMilli(),
		TransactionID: t.ID(),
		State:         t.State(),
		Replayed:      replayed,
	}
}
