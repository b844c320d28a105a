package domain

import (
	"context"
	"fmt"

	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// ValidatePurchase checks that the principal exists and that amount is the
// price of plan. It never writes.
func ValidatePurchase(
	ctx context.Context,
	principals identity.PrincipalRepository,
	prices PriceTable,
	principalID, planName string,
	amount int64,
) (identity.Plan, error) {
	if principalID == "" || planName == "" {
		return "", ErrInvalidAccount
	}
	plan, err := identity.ParsePlan(planName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnknownPlan, err)
	}
	if _, err := principals.FindByID(ctx, principalID); err != nil {
		return "", err
	}
	if err := prices.ValidatePurchase(plan, amount); err != nil {
		return "", err
	}
	return plan, nil
}
