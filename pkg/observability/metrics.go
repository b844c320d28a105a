package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names. Exporters add their own namespace and turn dots into
// underscores.
const (
	// Merchant callback endpoint
	MetricPaymeRequests    = "payme.requests"
	MetricPaymeErrors      = "payme.errors"
	MetricPaymeDuration    = "payme.duration"
	MetricPaymeRateLimited = "payme.rate_limited"

	// Entitlement grants retried by the reconciler
	MetricGrantsReconciled      = "grant_reconciled_total"
	MetricGrantsReconcileFailed = "grant_reconcile_failed_total"

	// Outbox relay
	MetricOutboxPublished      = "outbox_published_total"
	MetricOutboxFailed         = "outbox_failed_total"
	MetricOutboxDeadLettered   = "outbox_dead_lettered_total"
	MetricOutboxLag            = "outbox_lag_seconds"
	MetricOutboxPublishLatency = "outbox_publish_duration"
)

// Metrics records application metrics. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps every series in memory. Tests use it to assert on
// what a component recorded.
type InMemoryMetrics struct {
	mu     sync.Mutex
	series map[string]*memSeries
}

type memSeries struct {
	count   int64
	gauge   float64
	samples []float64
	timings []time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{series: make(map[string]*memSeries)}
}

func (m *InMemoryMetrics) get(name string, tags []Tag) *memSeries {
	key := seriesKey(name, tags)
	s, ok := m.series[key]
	if !ok {
		s = &memSeries{}
		m.series[key] = s
	}
	return s
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(name, tags).count += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(name, tags).gauge = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(name, tags)
	s.samples = append(s.samples, value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(name, tags)
	s.timings = append(s.timings, duration)
}

// GetCounter returns the counter for name and tags, in any tag order.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(name, tags).count
}

// GetGauge returns the last value set on the gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(name, tags).gauge
}

// GetTimings returns a copy of the recorded durations.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.get(name, tags).timings...)
}

// seriesKey renders name{k=v,...} with tags sorted by key.
func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}
