package domain

import (
	"context"
	"errors"
)

// ErrPrincipalNotFound is returned when no principal has the requested ID.
var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalRepository persists principals.
type PrincipalRepository interface {
	// FindByID returns ErrPrincipalNotFound when the principal does not exist.
	FindByID(ctx context.Context, id string) (*Principal, error)

	// Save inserts or replaces the principal.
	Save(ctx context.Context, principal *Principal) error

	// UpdateEntitlement writes only the plan and subscription status of an
	// existing principal. It returns ErrPrincipalNotFound when no row matched.
	UpdateEntitlement(ctx context.Context, principal *Principal) error
}
