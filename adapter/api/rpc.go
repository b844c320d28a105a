package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	identity "github.com/felixgeelhaar/carepay/internal/identity/domain"
)

// Protocol error codes of the merchant callback API.
const (
	CodeParseError          = -32700
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeInternalError       = -32603
	CodeInsufficientPrivs   = -32504
	CodeInvalidParams       = -31001
	CodeTransactionNotFound = -31003
	CodeCannotCancel        = -31007
	CodeCannotPerform       = -31008
	CodePrincipalNotFound   = -31050
)

// Callback methods.
const (
	MethodCheckPerformTransaction = "CheckPerformTransaction"
	MethodCreateTransaction       = "CreateTransaction"
	MethodPerformTransaction      = "PerformTransaction"
	MethodCancelTransaction       = "CancelTransaction"
	MethodCheckTransaction        = "CheckTransaction"
)

// RPCError is the error object of a callback response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

func newRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// Request is the inbound callback envelope. ID is kept raw so that it can be
// echoed back exactly as received.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

// Response is the outbound callback envelope.
type Response struct {
	Result any         `json:"result,omitempty"`
	Error  *RPCError   `json:"error,omitempty"`
	ID     json.Number `json:"id"`
}

// requestID returns the envelope id when it is a JSON number.
func (r Request) requestID() (json.Number, bool) {
	raw := bytes.TrimSpace(r.ID)
	if len(raw) == 0 || raw[0] == '"' {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	if _, err := n.Float64(); err != nil {
		return "", false
	}
	return n, true
}

// zeroID is echoed when the request carried no usable id.
const zeroID = json.Number("0")

var (
	errInvalidRequest = newRPCError(CodeInvalidRequest, "Invalid Request")
	errMethodNotFound = newRPCError(CodeMethodNotFound, "Method not found")
	errTooManyRequest = newRPCError(CodeParseError, "Too many requests")
	errInternal       = newRPCError(CodeInternalError, "Internal error")
	errUnauthorized   = newRPCError(CodeInsufficientPrivs, "Insufficient privileges")
	errInvalidParams  = newRPCError(CodeInvalidParams, "Invalid parameters")
	errInvalidTxID    = newRPCError(CodeInvalidParams, "Invalid transaction ID")
	errInvalidAmount  = newRPCError(CodeInvalidParams, "Invalid amount")
	errInvalidAccount = newRPCError(CodeInvalidParams, "Invalid account")
	errTxNotFound     = newRPCError(CodeTransactionNotFound, "Transaction not found")
	errUserNotFound   = newRPCError(CodePrincipalNotFound, "User not found")
	errCannotCancel   = newRPCError(CodeCannotCancel, "Transaction already performed, cannot cancel")
)

// failureFor names the store failure of each method.
var failureFor = map[string]*RPCError{
	MethodCreateTransaction:  newRPCError(CodeCannotPerform, "Unable to create transaction"),
	MethodPerformTransaction: newRPCError(CodeCannotPerform, "Unable to perform transaction"),
	MethodCancelTransaction:  newRPCError(CodeCannotPerform, "Unable to cancel transaction"),
	MethodCheckTransaction:   newRPCError(CodeCannotPerform, "Unable to check transaction"),
}

// referencesAccount reports whether method names the principal in its params.
// Elsewhere a missing principal is a store failure of the transaction.
func referencesAccount(method string) bool {
	return method == MethodCheckPerformTransaction || method == MethodCreateTransaction
}

// mapError converts an application error into the protocol error of method.
func mapError(method string, err error) *RPCError {
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, domain.ErrInvalidAccount), errors.Is(err, domain.ErrUnknownPlan), errors.Is(err, identity.ErrUnknownPlan):
		return errInvalidAccount
	case errors.Is(err, domain.ErrInvalidAmount):
		return errInvalidAmount
	case errors.Is(err, domain.ErrInvalidTransactionID):
		return errInvalidTxID
	case errors.Is(err, identity.ErrPrincipalNotFound) && referencesAccount(method):
		return errUserNotFound
	case errors.Is(err, domain.ErrTransactionNotFound):
		return errTxNotFound
	case errors.Is(err, domain.ErrAlreadyPerformed):
		return errCannotCancel
	}
	if failure, ok := failureFor[method]; ok {
		return failure
	}
	return errInternal
}
