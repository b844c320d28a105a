package domain

import (
	"fmt"
	"strings"
)

// CancelPolicy decides whether a performed transaction may be cancelled.
type CancelPolicy string

const (
	// CancelPolicyRefund moves a performed transaction to -2 and reverts the principal.
	CancelPolicyRefund CancelPolicy = "refund"
	// CancelPolicyReject refuses to cancel a performed transaction.
	CancelPolicyReject CancelPolicy = "reject"
)

// ParseCancelPolicy validates a policy name. Empty means refund.
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch p := CancelPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CancelPolicyRefund, nil
	case CancelPolicyRefund, CancelPolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCancelPolicy, s)
	}
}

// AllowsCancel reports whether t may be cancelled under the policy.
func (p CancelPolicy) AllowsCancel(t *Transaction) error {
	if p == CancelPolicyReject && t.State() == StatePerformed {
		return ErrAlreadyPerformed
	}
	return nil
}
