package domain_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutLink(t *testing.T) {
	link, err := domain.CheckoutLink("", "merchant-1", "u1", identity.PlanPro, domain.DefaultPriceTable())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://checkout.paycom.uz/merchant-1?"))

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "999", parsed.Query().Get("amount"))

	acc, err := domain.DecodeAccount(parsed.Query().Get("account"))
	require.NoError(t, err)
	assert.Equal(t, domain.Account{PrincipalID: "u1", Plan: "pro"}, acc)
}

func TestCheckoutLink_Errors(t *testing.T) {
	prices := domain.DefaultPriceTable()

	_, err := domain.CheckoutLink("", "", "u1", identity.PlanPro, prices)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = domain.CheckoutLink("", "m", "", identity.PlanPro, prices)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = domain.CheckoutLink("", "m", "u1", identity.PlanGuest, prices)
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)

	_, err = domain.DecodeAccount("!!!")
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestSubscription_ActivateAndCancel(t *testing.T) {
	tx := newCreated(t)
	now := time.Now()
	require.NoError(t, tx.Perform(now))

	sub := domain.NewSubscription("u1", now)
	assert.False(t, sub.IsActiveAt(now))

	sub.Activate(tx, now, 0)
	assert.Equal(t, identity.PlanPro, sub.Plan)
	assert.Equal(t, identity.SubscriptionActive, sub.Status)
	assert.Equal(t, "tx1", sub.TransactionID)
	assert.Equal(t, domain.DefaultSubscriptionPeriod, sub.CurrentPeriodEnd.Sub(*sub.CurrentPeriodStart))
	assert.True(t, sub.IsActiveAt(now.Add(time.Hour)))
	assert.False(t, sub.IsActiveAt(now.Add(domain.DefaultSubscriptionPeriod+time.Second)))

	other, err := domain.NewTransaction("tx2", "u1", identity.PlanPro, 999, "", gatewayTime)
	require.NoError(t, err)
	assert.False(t, sub.Cancel(other, now))
	assert.Equal(t, identity.SubscriptionActive, sub.Status)

	assert.True(t, sub.Cancel(tx, now))
	assert.Equal(t, identity.SubscriptionCanceled, sub.Status)
	assert.Equal(t, identity.PlanFree, sub.Plan)
}
