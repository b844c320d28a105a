package domain

import (
	"fmt"
	"sort"

	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// PriceTable maps each purchasable plan to its price in minor currency units.
type PriceTable struct {
	prices map[identity.Plan]int64
}

// DefaultPriceTable returns the stock prices: free costs nothing, pro costs 999.
func DefaultPriceTable() PriceTable {
	return PriceTable{prices: map[identity.Plan]int64{
		identity.PlanFree: 0,
		identity.PlanPro:  999,
	}}
}

// NewPriceTable builds a price table from plan names to amounts.
func NewPriceTable(prices map[string]int64) (PriceTable, error) {
	if len(prices) == 0 {
		return PriceTable{}, fmt.Errorf("%w: empty price table", ErrUnknownPlan)
	}
	table := PriceTable{prices: make(map[identity.Plan]int64, len(prices))}
	for name, amount := range prices {
		plan, err := identity.ParsePlan(name)
		if err != nil {
			return PriceTable{}, err
		}
		if amount < 0 {
			return PriceTable{}, fmt.Errorf("%w: negative price for %s", ErrInvalidAmount, plan)
		}
		table.prices[plan] = amount
	}
	return table, nil
}

// PriceFor returns the expected amount for plan.
func (t PriceTable) PriceFor(plan identity.Plan) (int64, error) {
	amount, ok := t.prices[plan]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	return amount, nil
}

// Plans lists the priced plans in name order.
func (t PriceTable) Plans() []identity.Plan {
	plans := make([]identity.Plan, 0, len(t.prices))
	for p := range t.prices {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i] < plans[j] })
	return plans
}

// ValidatePurchase checks that amount is the listed price of plan.
func (t PriceTable) ValidatePurchase(plan identity.Plan, amount int64) error {
	expected, err := t.PriceFor(plan)
	if err != nil {
		return err
	}
	if amount != expected {
		return fmt.Errorf("%w: got %d, want %d for %s", ErrInvalidAmount, amount, expected, plan)
	}
	return nil
}
