package queries

import (
	"context"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
)

// ListTransactionsQuery filters the transaction store.
type ListTransactionsQuery struct {
	PrincipalID string
	State       *domain.State
	Limit       int
}

func (ListTransactionsQuery) QueryName() string { return "billing.list_transactions" }

// ListTransactionsHandler handles ListTransactionsQuery.
type ListTransactionsHandler struct {
	transactions domain.TransactionRepository
}

// NewListTransactionsHandler creates a new ListTransactionsHandler.
func NewListTransactionsHandler(transactions domain.TransactionRepository) *ListTransactionsHandler {
	return &ListTransactionsHandler{transactions: transactions}
}

// Handle executes the ListTransactionsQuery.
func (h *ListTransactionsHandler) Handle(ctx context.Context, query ListTransactionsQuery) ([]TransactionDTO, error) {
	list, err := h.transactions.List(ctx, domain.ListFilter{
		PrincipalID: query.PrincipalID,
		State:       query.State,
		Limit:       query.Limit,
	})
	if err != nil {
		return nil, err
	}

	dtos := make([]TransactionDTO, 0, len(list))
	for _, t := range list {
		dtos = append(dtos, toDTO(t))
	}
	return dtos, nil
}

// GetTransactionHandler returns the full read model of one transaction.
type GetTransactionHandler struct {
	transactions domain.TransactionRepository
}

// NewGetTransactionHandler creates a new GetTransactionHandler.
func NewGetTransactionHandler(transactions domain.TransactionRepository) *GetTransactionHandler {
	return &GetTransactionHandler{transactions: transactions}
}

// Handle looks up the transaction by id.
func (h *GetTransactionHandler) Handle(ctx context.Context, query CheckTransactionQuery) (*TransactionDTO, error) {
	t, err := h.transactions.FindByID(ctx, query.ID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(t)
	return &dto, nil
}
