package queries

import (
	"context"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// CheckPerformTransactionQuery asks whether a purchase may proceed.
type CheckPerformTransactionQuery struct {
	PrincipalID string
	Plan        string
	Amount      int64
}

func (CheckPerformTransactionQuery) QueryName() string { return "billing.check_perform_transaction" }

// CheckPerformResult is the pre-flight answer.
type CheckPerformResult struct {
	Allow bool
}

// CheckPerformTransactionHandler validates a purchase without side effects.
type CheckPerformTransactionHandler struct {
	principals identity.PrincipalRepository
	prices     domain.PriceTable
}

// NewCheckPerformTransactionHandler creates a new CheckPerformTransactionHandler.
func NewCheckPerformTransactionHandler(principals identity.PrincipalRepository, prices domain.PriceTable) *CheckPerformTransactionHandler {
	return &CheckPerformTransactionHandler{principals: principals, prices: prices}
}

// Handle executes the CheckPerformTransactionQuery.
func (h *CheckPerformTransactionHandler) Handle(ctx context.Context, query CheckPerformTransactionQuery) (CheckPerformResult, error) {
	if _, err := domain.ValidatePurchase(ctx, h.principals, h.prices, query.PrincipalID, query.Plan, query.Amount); err != nil {
		return CheckPerformResult{}, err
	}
	return CheckPerformResult{Allow: true}, nil
}
