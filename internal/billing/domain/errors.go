package domain

import "errors"

var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrTransactionExists      = errors.New("transaction already exists")
	ErrInvalidTransactionID   = errors.New("invalid transaction id")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidAccount         = errors.New("invalid account")
	ErrUnknownPlan            = errors.New("unknown plan")
	ErrInvalidStateTransition = errors.New("invalid transaction state transition")
	ErrAlreadyPerformed       = errors.New("transaction already performed")
	ErrConcurrentModification = errors.New("transaction was modified concurrently")
	ErrGrantNotPending        = errors.New("transaction has no pending grant")
	ErrInvalidCancelPolicy    = errors.New("invalid cancel policy")
)
