// Package api provides the HTTP surface of carepay: the Payme merchant
// callback endpoint plus health and metrics routes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/ratelimit"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

// PaymePath is the merchant callback route.
const PaymePath = "/api/payment/payme"

// Server is the HTTP API server.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	handler *PaymeHandler
	deps    ServerDeps
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ServerDeps are the collaborators of the routes around the callback handler.
type ServerDeps struct {
	// Limiter throttles the callback route. Nil disables throttling.
	Limiter ratelimit.Limiter
	// TrustedProxies may name the client through forwarding headers.
	TrustedProxies []netip.Prefix
	// Health backs /readyz.
	Health *observability.HealthRegistry
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Metrics        observability.Metrics
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handler *PaymeHandler, deps ServerDeps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealthRegistry()
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		handler: handler,
		deps:    deps,
	}

	// Register routes
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      Chain(s.mux, Recover(logger), RequestID()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if s.deps.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", s.deps.MetricsHandler)
	}

	var callback http.Handler = s.handler
	if s.deps.Limiter != nil {
		callback = RateLimit(s.deps.Limiter, s.deps.TrustedProxies, s.deps.Metrics, s.logger)(callback)
	}
	s.mux.Handle("POST "+PaymePath, callback)
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleHealth handles liveness requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady runs the registered health checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Health.GetOverallHealth(r.Context())
	status := http.StatusOK
	if health.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting payment API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down payment API server")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but can't do much at this point
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
