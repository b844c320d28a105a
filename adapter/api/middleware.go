package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/ratelimit"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first one runs outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recover turns a panic into an internal protocol error.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic in http handler",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeRPC(w, http.StatusInternalServerError, Response{Error: errInternal})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID attaches request and correlation ids to the request context and
// echoes the request id in X-Request-ID.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
			ctx = observability.WithCorrelationID(ctx, r.Header.Get("X-Correlation-ID"))
			w.Header().Set("X-Request-ID", observability.RequestIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit throttles requests per client address. A limiter failure lets the
// request through.
func RateLimit(limiter ratelimit.Limiter, trusted []netip.Prefix, metrics observability.Metrics, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, trusted)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "client", key, "error", err)
				allowed = true
			}
			if !allowed {
				metrics.Counter(observability.MetricPaymeRateLimited, 1)
				logger.WarnContext(r.Context(), "payme callback rate limited", "client", key)
				writeRPC(w, http.StatusTooManyRequests, Response{Error: errTooManyRequest})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the peer address of r. Forwarding headers are honoured only
// when the peer is a trusted proxy: the right-most X-Forwarded-For hop outside
// the trusted ranges wins, then X-Real-IP.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if peer == "" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(addr, trusted) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			hopAddr, err := netip.ParseAddr(hop)
			if err != nil {
				return hop
			}
			if !isTrusted(hopAddr, trusted) {
				return hopAddr.Unmap().String()
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
