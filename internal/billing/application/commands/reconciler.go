package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carepay/internal/billing/domain"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

// ReconcilerConfig configures the grant sweep.
type ReconcilerConfig struct {
	// Interval between sweeps when running as a loop.
	Interval time.Duration
	// BatchSize caps transactions handled per sweep.
	BatchSize int
	// MinAge skips transactions performed more recently than this, leaving
	// them to the in-flight request that performed them.
	MinAge time.Duration
}

// DefaultReconcilerConfig returns sensible defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:  time.Minute,
		BatchSize: 50,
		MinAge:    30 * time.Second,
	}
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Scanned int
	Granted int
	Failed  int
}

// GrantReconciler finishes performed transactions whose grant is pending.
type GrantReconciler struct {
	transactions domain.TransactionRepository
	granter      *EntitlementGranter
	config       ReconcilerConfig
	metrics      observability.Metrics
	clock        Clock
	logger       *slog.Logger
}

// NewGrantReconciler creates a reconciler.
func NewGrantReconciler(transactions domain.TransactionRepository, granter *EntitlementGranter, config ReconcilerConfig, logger *slog.Logger) *GrantReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultReconcilerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MinAge < 0 {
		config.MinAge = 0
	}
	return &GrantReconciler{
		transactions: transactions,
		granter:      granter,
		config:       config,
		metrics:      observability.NoopMetrics{},
		clock:        systemClock,
		logger:       logger,
	}
}

// WithMetrics sets the metrics sink.
func (r *GrantReconciler) WithMetrics(m observability.Metrics) *GrantReconciler {
	if m != nil {
		r.metrics = m
	}
	return r
}

// WithClock overrides the time source.
func (r *GrantReconciler) WithClock(clock Clock) *GrantReconciler {
	r.clock = clock
	return r
}

// RunOnce performs a single sweep. Individual grant failures are counted and
// logged; only a failure to list pending transactions is returned.
func (r *GrantReconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	cutoff := r.clock().Add(-r.config.MinAge)
	pending, err := r.transactions.ListPendingGrants(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(pending)

	for _, t := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		granted, err := r.granter.Grant(ctx, t.ID())
		if err != nil {
			report.Failed++
			r.metrics.Counter(observability.MetricGrantsReconcileFailed, 1)
			r.logger.WarnContext(ctx, "reconcile grant failed",
				"transaction", t.ID(),
				"principal_id", t.PrincipalID(),
				"error", err,
			)
			continue
		}
		if granted {
			report.Granted++
			r.metrics.Counter(observability.MetricGrantsReconciled, 1)
		}
	}

	if report.Scanned > 0 {
		r.logger.InfoContext(ctx, "grant reconcile sweep",
			"scanned", report.Scanned,
			"granted", report.Granted,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// Start sweeps on the configured interval until ctx is cancelled.
func (r *GrantReconciler) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("grant reconciler started", "interval", r.config.Interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("grant reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("grant reconcile sweep failed", "error", err)
			}
		}
	}
}
