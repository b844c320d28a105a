package domain

import sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"

const (
	AggregateType = "Principal"

	RoutingKeyEntitlementChanged = "identity.principal.entitlement_changed"
)

// EntitlementChanged is emitted whenever a principal's plan or subscription status changes.
type EntitlementChanged struct {
	sharedDomain.BaseEvent
	PrincipalID        string `json:"principal_id"`
	FromPlan           string `json:"from_plan"`
	Plan               string `json:"plan"`
	SubscriptionStatus string `json:"subscription_status"`
}

// NewEntitlementChanged creates an EntitlementChanged event.
func NewEntitlementChanged(principalID string, from, to Plan, status SubscriptionStatus) *EntitlementChanged {
	return &EntitlementChanged{
		BaseEvent:          sharedDomain.NewBaseEvent(principalID, AggregateType, RoutingKeyEntitlementChanged),
		PrincipalID:        principalID,
		FromPlan:           from.String(),
		Plan:               to.String(),
		SubscriptionStatus: status.String(),
	}
}
