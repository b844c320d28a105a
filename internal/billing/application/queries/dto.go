package queries

import (
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
)

// TransactionDTO is the read model of a transaction.
type TransactionDTO struct {
	ID           string     `json:"id"`
	PrincipalID  string     `json:"principal_id"`
	Plan         string     `json:"plan"`
	Amount       int64      `json:"amount"`
	State        int        `json:"state"`
	StateName    string     `json:"state_name"`
	Provider     string     `json:"provider"`
	GrantStatus  string     `json:"grant_status"`
	CancelReason *int       `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PerformedAt  *time.Time `json:"performed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

func toDTO(t *domain.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           t.ID(),
		PrincipalID:  t.PrincipalID(),
		Plan:         t.Plan().String(),
		Amount:       t.Amount(),
		State:        int(t.State()),
		StateName:    t.State().String(),
		Provider:     t.Provider(),
		GrantStatus:  string(t.GrantStatus()),
		CancelReason: t.CancelReason(),
		CreatedAt:    t.CreatedAt(),
		PerformedAt:  t.PerformedAt(),
		CancelledAt:  t.CancelledAt(),
	}
}

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
