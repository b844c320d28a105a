package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/carepay/internal/shared/domain"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/carepay/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int

	// A message is dead-lettered once it has failed MaxRetries times.
	// Between attempts it waits RetryBackoffBase doubled per failure,
	// capped at RetryBackoffMax.
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration

	// Published messages older than this are removed by Cleanup.
	RetentionDays int
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		RetentionDays:    7,
	}
}

// Stats is a snapshot of relay activity since start.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// Processor relays committed outbox messages to the broker. Delivery is at
// least once: a crash between Publish and MarkPublished republishes.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
	}
}

// WithMetrics reports publish outcomes to m.
func (p *Processor) WithMetrics(m observability.Metrics) *Processor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Start launches the polling loop. Calling it on a running processor is a
// no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch synchronously. Only a failure to read the
// batch is returned; per-message failures are recorded on the message.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.update(func(s *Stats) { s.noteError(err) })
		return err
	}
	p.observeLag(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			return nil
		}
		p.relay(ctx, msg)
	}
	return nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) {
	start := time.Now()
	err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	p.metrics.Timing(observability.MetricOutboxPublishLatency, time.Since(start),
		observability.T("routing_key", msg.RoutingKey))

	if err == nil {
		if markErr := p.repo.MarkPublished(ctx, msg.ID); markErr != nil {
			p.logger.Error("failed to mark message as published",
				"id", msg.ID, "event_id", msg.EventID, "error", markErr)
			return
		}
		p.metrics.Counter(observability.MetricOutboxPublished, 1)
		p.update(func(s *Stats) { s.PublishedCount++ })
		return
	}

	meta := traceOf(msg)
	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"correlation_id", meta.CorrelationID,
		"principal_id", meta.PrincipalID,
		"error", err,
	)

	attempt := msg.RetryCount + 1
	if p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries {
		p.metrics.Counter(observability.MetricOutboxDeadLettered, 1)
		p.update(func(s *Stats) { s.DeadCount++; s.noteError(err) })
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		return
	}

	p.metrics.Counter(observability.MetricOutboxFailed, 1)
	p.update(func(s *Stats) { s.FailedCount++; s.noteError(err) })
	next := time.Now().Add(p.backoff(attempt))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		p.logger.Error("failed to schedule message retry", "id", msg.ID, "error", markErr)
	}
}

// backoff is base * 2^(attempt-1), capped at RetryBackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	base, ceiling := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	factor := convert.ShiftCapped(max(attempt, 1) - 1)
	if factor > int64(ceiling/base) {
		return ceiling
	}
	return base * time.Duration(factor)
}

// Cleanup deletes published messages past the retention period.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	days := p.config.RetentionDays
	if days <= 0 {
		days = 7
	}
	deleted, err := p.repo.DeleteOld(ctx, days)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}

func (p *Processor) GetStats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.IsRunning = running
	return s
}

func (p *Processor) update(fn func(*Stats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.stats)
}

func (s *Stats) noteError(err error) {
	now := time.Now()
	s.LastError = err.Error()
	s.LastErrorAt = &now
}

// observeLag records the age of the oldest pending message in the batch.
func (p *Processor) observeLag(batch []*Message) {
	now := time.Now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}

	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, lag)
	p.update(func(s *Stats) {
		s.LastProcessedAt = &now
		s.OldestMessageAt = oldest
		s.LagSeconds = lag
	})
}

func traceOf(msg *Message) domain.EventMetadata {
	var meta domain.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &meta)
	}
	return meta
}
