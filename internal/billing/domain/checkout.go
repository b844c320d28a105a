package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// DefaultCheckoutURL is the Payme hosted checkout base.
const DefaultCheckoutURL = "https://checkout.paycom.uz"

// Account is the merchant-defined payload the gateway echoes back in
// CheckPerformTransaction and CreateTransaction.
type Account struct {
	PrincipalID string `json:"user_id"`
	Plan        string `json:"plan"`
}

// CheckoutLink builds the URL that sends a principal to the gateway to pay
// for plan. The account is JSON encoded then base64 encoded.
func CheckoutLink(baseURL, merchantID, principalID string, plan identity.Plan, prices PriceTable) (string, error) {
	if strings.TrimSpace(merchantID) == "" {
		return "", fmt.Errorf("%w: merchant id is required", ErrInvalidAccount)
	}
	if strings.TrimSpace(principalID) == "" {
		return "", ErrInvalidAccount
	}
	amount, err := prices.PriceFor(plan)
	if err != nil {
		return "", err
	}
	if baseURL == "" {
		baseURL = DefaultCheckoutURL
	}

	raw, err := json.Marshal(Account{PrincipalID: principalID, Plan: plan.String()})
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("amount", fmt.Sprint(amount))
	q.Set("account", base64.StdEncoding.EncodeToString(raw))

	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(merchantID) + "?" + q.Encode(), nil
}

// DecodeAccount reverses the account encoding used by CheckoutLink.
func DecodeAccount(encoded string) (Account, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	var acc Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return acc, nil
}
