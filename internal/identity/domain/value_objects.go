package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail              = errors.New("invalid email address")
	ErrUnknownPlan               = errors.New("unknown plan")
	ErrUnknownSubscriptionStatus = errors.New("unknown subscription status")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email represents a validated email address.
type Email struct {
	value string
}

// NewEmail creates a validated email address.
func NewEmail(value string) (Email, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || !emailRegex.MatchString(value) {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: value}, nil
}

// String returns the email string.
func (e Email) String() string {
	return e.value
}

// IsZero reports whether no email is set.
func (e Email) IsZero() bool {
	return e.value == ""
}

// Plan is an entitlement tier.
type Plan string

const (
	PlanGuest Plan = "guest"
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
)

// ParsePlan validates a tier name.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case PlanGuest, PlanFree, PlanPro:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
}

func (p Plan) String() string { return string(p) }

// SubscriptionStatus is the lifecycle of a principal's paid entitlement.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// ParseSubscriptionStatus validates a status name.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case SubscriptionActive, SubscriptionInactive, SubscriptionCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSubscriptionStatus, s)
	}
}

func (s SubscriptionStatus) String() string { return string(s) }
