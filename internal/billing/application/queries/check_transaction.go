package queries

import (
	"context"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
)

// CheckTransactionQuery reads one transaction by gateway id.
type CheckTransactionQuery struct {
	ID string
}

func (CheckTransactionQuery) QueryName() string { return "billing.check_transaction" }

// CheckTransactionResult is the protocol view of a transaction. Unset
// timestamps are zero and an unset reason is nil.
type CheckTransactionResult struct {
	CreateTime    int64
	PerformTime   int64
	CancelTime    int64
	TransactionID string
	State         domain.State
	Reason        *int
}

// CheckTransactionHandler handles CheckTransactionQuery.
type CheckTransactionHandler struct {
	transactions domain.TransactionRepository
}

// NewCheckTransactionHandler creates a new CheckTransactionHandler.
func NewCheckTransactionHandler(transactions domain.TransactionRepository) *CheckTransactionHandler {
	return &CheckTransactionHandler{transactions: transactions}
}

// Handle executes the CheckTransactionQuery.
func (h *CheckTransactionHandler) Handle(ctx context.Context, query CheckTransactionQuery) (CheckTransactionResult, error) {
	t, err := h.transactions.FindByID(ctx, query.ID)
	if err != nil {
		return CheckTransactionResult{}, err
	}
	return CheckTransactionResult{
		CreateTime:    t.CreatedAt().UnixMilli(),
		PerformTime:   millis(t.PerformedAt()),
		CancelTime:    millis(t.CancelledAt()),
		TransactionID: t.ID(),
		State:         t.State(),
		Reason:        t.CancelReason(),
	}, nil
}
