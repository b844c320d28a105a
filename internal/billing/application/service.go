package application

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// Status is a principal's entitlement together with its billing record.
type Status struct {
	Principal    *identity.Principal
	Subscription *domain.Subscription
}

// Service provides read access to principals and their subscriptions.
type Service struct {
	principals    identity.PrincipalRepository
	subscriptions domain.SubscriptionRepository
}

// NewService creates a new billing service.
func NewService(principals identity.PrincipalRepository, subscriptions domain.SubscriptionRepository) *Service {
	return &Service{principals: principals, subscriptions: subscriptions}
}

// GetSubscription returns the principal's subscription, if any.
func (s *Service) GetSubscription(ctx context.Context, principalID string) (*domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return nil, nil
	}
	return s.subscriptions.FindByPrincipalID(ctx, principalID)
}

// GetPrincipal returns the principal or identity.ErrPrincipalNotFound.
func (s *Service) GetPrincipal(ctx context.Context, principalID string) (*identity.Principal, error) {
	return s.principals.FindByID(ctx, principalID)
}

// GetStatus returns both the principal and its subscription.
func (s *Service) GetStatus(ctx context.Context, principalID string) (*Status, error) {
	p, err := s.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	sub, err := s.GetSubscription(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return &Status{Principal: p, Subscription: sub}, nil
}

// UpsertPrincipal registers a principal or updates its email. Entitlement
// fields of an existing principal are kept.
func (s *Service) UpsertPrincipal(ctx context.Context, principalID, email string) (*identity.Principal, error) {
	if principalID == "" {
		return nil, identity.ErrPrincipalNotFound
	}

	var addr identity.Email
	if email != "" {
		var err error
		if addr, err = identity.NewEmail(email); err != nil {
			return nil, err
		}
	}

	p, err := s.principals.FindByID(ctx, principalID)
	switch {
	case err == nil:
		if !addr.IsZero() {
			p.ChangeEmail(addr)
		}
	case errors.Is(err, identity.ErrPrincipalNotFound):
		p = identity.NewPrincipal(principalID, addr)
	default:
		return nil, err
	}

	if err := s.principals.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
