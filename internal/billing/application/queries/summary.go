package queries

import (
	"context"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
)

// SummaryQuery requests the payment overview.
type SummaryQuery struct{}

func (SummaryQuery) QueryName() string { return "billing.summary" }

// SummaryDTO is the payment overview shown to operators.
type SummaryDTO struct {
	Total          int            `json:"total"`
	ByState        map[string]int `json:"by_state"`
	PendingGrants  int            `json:"pending_grants"`
	CapturedAmount int64          `json:"captured_amount"`
}

// SummaryHandler handles SummaryQuery.
type SummaryHandler struct {
	transactions domain.TransactionRepository
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(transactions domain.TransactionRepository) *SummaryHandler {
	return &SummaryHandler{transactions: transactions}
}

// Handle executes the SummaryQuery.
func (h *SummaryHandler) Handle(ctx context.Context, _ SummaryQuery) (SummaryDTO, error) {
	s, err := h.transactions.Summarize(ctx)
	if err != nil {
		return SummaryDTO{}, err
	}

	byState := make(map[string]int, len(s.ByState))
	for state, n := range s.ByState {
		byState[state.String()] = n
	}
	return SummaryDTO{
		Total:          s.Total,
		ByState:        byState,
		PendingGrants:  s.PendingGrants,
		CapturedAmount: s.CapturedAmount,
	}, nil
}
