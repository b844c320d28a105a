package observability

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	requestIDKey
	rpcMethodKey
)

// Log attribute keys added from context or by callers.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	RPCMethodKey     = "rpc_method"
	DurationKey      = "duration_ms"
)

// WithCorrelationID tags ctx with a correlation id, generating one when id
// is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, orNewID(id))
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithRequestID tags ctx with a request id, generating one when id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, orNewID(id))
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRPCMethod records the JSON-RPC method being served.
func WithRPCMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, rpcMethodKey, method)
}

// RPCMethodFromContext returns the JSON-RPC method, or "".
func RPCMethodFromContext(ctx context.Context) string {
	return stringValue(ctx, rpcMethodKey)
}

func orNewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
