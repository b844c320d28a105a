package domain_test

import (
	"testing"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPriceTable(t *testing.T) {
	prices := domain.DefaultPriceTable()

	amount, err := prices.PriceFor(identity.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, int64(999), amount)

	amount, err = prices.PriceFor(identity.PlanFree)
	require.NoError(t, err)
	assert.Zero(t, amount)

	_, err = prices.PriceFor(identity.PlanGuest)
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)

	assert.Equal(t, []identity.Plan{identity.PlanFree, identity.PlanPro}, prices.Plans())
}

func TestPriceTable_ValidatePurchase(t *testing.T) {
	prices := domain.DefaultPriceTable()

	assert.NoError(t, prices.ValidatePurchase(identity.PlanPro, 999))
	for _, amount := range []int64{0, 998, 1000, 99900} {
		assert.ErrorIs(t, prices.ValidatePurchase(identity.PlanPro, amount), domain.ErrInvalidAmount)
	}
}

func TestNewPriceTable(t *testing.T) {
	prices, err := domain.NewPriceTable(map[string]int64{"pro": 99900})
	require.NoError(t, err)
	amount, err := prices.PriceFor(identity.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, int64(99900), amount)

	_, err = domain.NewPriceTable(map[string]int64{"gold": 1})
	assert.ErrorIs(t, err, identity.ErrUnknownPlan)

	_, err = domain.NewPriceTable(map[string]int64{"pro": -5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = domain.NewPriceTable(nil)
	assert.Error(t, err)
}
