// Command worker relays the billing outbox to the configured broker and
// re-applies entitlement grants that failed after a successful payment.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/carepay/internal/app"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger = observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, os.Getenv("APP_VERSION")))
	logger.Info("starting carepay worker", "event_bus", cfg.EventBusDriver)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	publisher, err := container.NewEventPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	relayCfg := outbox.DefaultProcessorConfig()
	relayCfg.PollInterval = cfg.OutboxPollInterval
	relayCfg.BatchSize = cfg.OutboxBatchSize
	relayCfg.MaxRetries = cfg.OutboxMaxRetries
	relayCfg.RetentionDays = cfg.OutboxRetentionDays
	relay := outbox.NewProcessor(container.OutboxRepo, publisher, relayCfg, logger).WithMetrics(container.Metrics)

	if cfg.OutboxProcessorEnabled {
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer relay.Stop()
	} else {
		logger.Info("outbox processor disabled")
	}

	go every(ctx, cfg.OutboxCleanupInterval, func() {
		if _, err := relay.Cleanup(ctx); err != nil {
			logger.Error("outbox cleanup failed", "error", err)
		}
	})
	go every(ctx, cfg.OutboxStatsInterval, func() {
		logStats(logger, relay.GetStats())
	})

	reconciled := make(chan struct{})
	go func() {
		defer close(reconciled)
		if err := container.GrantReconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("grant reconciler stopped", "error", err)
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		go serveHealth(ctx, cfg.WorkerHealthAddr, container, relay, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	<-reconciled
	return nil
}

// every calls fn on each tick of interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// serveHealth exposes liveness with relay stats, readiness and Prometheus
// metrics until ctx is cancelled.
func serveHealth(ctx context.Context, addr string, c *app.Container, relay *outbox.Processor, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s := relay.GetStats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"running":           s.IsRunning,
			"published":         s.PublishedCount,
			"failed":            s.FailedCount,
			"dead":              s.DeadCount,
			"lag_seconds":       s.LagSeconds,
			"last_processed_at": s.LastProcessedAt,
			"last_error":        s.LastError,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		health := c.Health.GetOverallHealth(checkCtx)
		status := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})
	mux.Handle("GET /metrics", c.Metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("health server error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logStats(logger *slog.Logger, s outbox.Stats) {
	logger.Info("outbox stats",
		"running", s.IsRunning,
		"published", s.PublishedCount,
		"failed", s.FailedCount,
		"dead", s.DeadCount,
		"lag_seconds", s.LagSeconds,
		"oldest_message_at", s.OldestMessageAt,
		"last_error_at", s.LastErrorAt,
		"last_error", s.LastError,
	)
}
