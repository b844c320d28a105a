package domain

import (
	"time"

	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/google/uuid"
)

// DefaultSubscriptionPeriod is the length of one paid period.
const DefaultSubscriptionPeriod = 30 * 24 * time.Hour

// Subscription is the billing record of a principal's paid plan. There is at
// most one per principal; each grant renews it in place.
type Subscription struct {
	ID                 uuid.UUID
	PrincipalID        string
	Plan               identity.Plan
	Status             identity.SubscriptionStatus
	Provider           string
	TransactionID      string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscription creates an inactive subscription record for a principal.
func NewSubscription(principalID string, now time.Time) *Subscription {
	return &Subscription{
		ID:          uuid.New(),
		PrincipalID: principalID,
		Plan:        identity.PlanFree,
		Status:      identity.SubscriptionInactive,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

// Activate starts a new paid period funded by t.
func (s *Subscription) Activate(t *Transaction, now time.Time, period time.Duration) {
	if period <= 0 {
		period = DefaultSubscriptionPeriod
	}
	start := now.UTC()
	end := start.Add(period)

	s.Plan = t.Plan()
	s.Status = identity.SubscriptionActive
	s.Provider = t.Provider()
	s.TransactionID = t.ID()
	s.CurrentPeriodStart = &start
	s.CurrentPeriodEnd = &end
	s.UpdatedAt = start
}

// Cancel ends the subscription when the funding transaction is refunded.
// Subscriptions funded by a different transaction are left alone.
func (s *Subscription) Cancel(t *Transaction, now time.Time) bool {
	if s.TransactionID != "" && s.TransactionID != t.ID() {
		return false
	}
	at := now.UTC()
	s.Plan = identity.PlanFree
	s.Status = identity.SubscriptionCanceled
	s.CurrentPeriodEnd = &at
	s.UpdatedAt = at
	return true
}

// IsActiveAt reports whether the subscription grants its plan at instant.
func (s *Subscription) IsActiveAt(instant time.Time) bool {
	if s.Status != identity.SubscriptionActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || instant.Before(*s.CurrentPeriodEnd)
}
