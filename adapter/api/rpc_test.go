package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/carepay/internal/billing/application/commands"
	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	grantFailed := fmt.Errorf("%w: transaction tx1: %w", commands.ErrGrantFailed, identity.ErrPrincipalNotFound)

	tests := []struct {
		name   string
		method string
		err    error
		code   int
	}{
		{"check perform unknown principal", MethodCheckPerformTransaction, identity.ErrPrincipalNotFound, CodePrincipalNotFound},
		{"create unknown principal", MethodCreateTransaction, fmt.Errorf("lookup: %w", identity.ErrPrincipalNotFound), CodePrincipalNotFound},
		{"perform grant without principal", MethodPerformTransaction, grantFailed, CodeCannotPerform},
		{"cancel refund without principal", MethodCancelTransaction, identity.ErrPrincipalNotFound, CodeCannotPerform},
		{"perform unknown transaction", MethodPerformTransaction, domain.ErrTransactionNotFound, CodeTransactionNotFound},
		{"cancel after perform rejected", MethodCancelTransaction, domain.ErrAlreadyPerformed, CodeCannotCancel},
		{"store failure", MethodCreateTransaction, errors.New("disk full"), CodeCannotPerform},
		{"store failure without method failure", MethodCheckPerformTransaction, errors.New("disk full"), CodeInternalError},
		{"protocol error passes through", MethodCheckTransaction, errInvalidTxID, CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, mapError(tt.method, tt.err).Code)
		})
	}
}
