package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/carepay/internal/shared/domain"
)

// Principal is an application user as seen by billing: an identity issued by
// the auth provider plus the entitlement fields that gate features.
type Principal struct {
	sharedDomain.BaseAggregateRoot
	email              Email
	plan               Plan
	subscriptionStatus SubscriptionStatus
}

// NewPrincipal registers a principal on the free tier with no subscription.
func NewPrincipal(id string, email Email) *Principal {
	return &Principal{
		BaseAggregateRoot:  sharedDomain.NewBaseAggregateRoot(id, time.Now()),
		email:              email,
		plan:               PlanFree,
		subscriptionStatus: SubscriptionInactive,
	}
}

// RehydratePrincipal recreates a principal from persisted state.
func RehydratePrincipal(id string, email Email, plan Plan, status SubscriptionStatus, createdAt, updatedAt time.Time) *Principal {
	return &Principal{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), 0,
		),
		email:              email,
		plan:               plan,
		subscriptionStatus: status,
	}
}

func (p *Principal) Email() Email                           { return p.email }
func (p *Principal) Plan() Plan                             { return p.plan }
func (p *Principal) SubscriptionStatus() SubscriptionStatus { return p.subscriptionStatus }

// HasActivePlan reports whether the principal currently holds plan.
func (p *Principal) HasActivePlan(plan Plan) bool {
	return p.plan == plan && p.subscriptionStatus == SubscriptionActive
}

// Grant moves the principal onto plan with an active subscription.
// Granting the entitlement the principal already holds is a no-op.
func (p *Principal) Grant(plan Plan) bool {
	if p.HasActivePlan(plan) {
		return false
	}
	p.setEntitlement(plan, SubscriptionActive)
	return true
}

// Revoke returns the principal to the free tier with a canceled subscription.
func (p *Principal) Revoke() bool {
	if p.plan == PlanFree && p.subscriptionStatus == SubscriptionCanceled {
		return false
	}
	p.setEntitlement(PlanFree, SubscriptionCanceled)
	return true
}

// ChangeEmail replaces the contact address.
func (p *Principal) ChangeEmail(email Email) {
	if p.email == email {
		return
	}
	p.email = email
	p.Touch()
}

func (p *Principal) setEntitlement(plan Plan, status SubscriptionStatus) {
	from := p.plan
	p.plan = plan
	p.subscriptionStatus = status
	p.Touch()
	p.AddDomainEvent(NewEntitlementChanged(p.ID(), from, plan, status))
}
