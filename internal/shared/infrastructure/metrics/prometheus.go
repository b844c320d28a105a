// Package metrics exports observability.Metrics through Prometheus.
package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/carepay/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements observability.Metrics. Collectors are created on first
// use; the label names of a metric are fixed by the tags of that first call.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus creates a collector set on its own registry, including the
// Go runtime and process collectors.
func NewPrometheus(namespace string, logger *slog.Logger) *Prometheus {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Prometheus{
		namespace:  namespace,
		registry:   reg,
		logger:     logger,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Counter(name string, value int64, tags ...observability.Tag) {
	names, values := splitTags(tags)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      sanitize(name),
			Help:      name,
		}, names)
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()

	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	c.Add(float64(value))
}

func (p *Prometheus) Gauge(name string, value float64, tags ...observability.Tag) {
	names, values := splitTags(tags)

	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      sanitize(name),
			Help:      name,
		}, names)
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	g.Set(value)
}

func (p *Prometheus) Histogram(name string, value float64, tags ...observability.Tag) {
	p.observe(name, value, prometheus.DefBuckets, tags)
}

// Timing records durations in seconds.
func (p *Prometheus) Timing(name string, duration time.Duration, tags ...observability.Tag) {
	p.observe(name+"_seconds", duration.Seconds(), prometheus.DefBuckets, tags)
}

func (p *Prometheus) observe(name string, value float64, buckets []float64, tags []observability.Tag) {
	names, values := splitTags(tags)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      sanitize(name),
			Help:      name,
			Buckets:   buckets,
		}, names)
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	h.Observe(value)
}

func (p *Prometheus) register(name string, c prometheus.Collector) bool {
	if err := p.registry.Register(c); err != nil {
		p.logger.Warn("failed to register metric", "metric", name, "error", err)
		return false
	}
	return true
}

// splitTags returns label names and values ordered by key.
func splitTags(tags []observability.Tag) ([]string, []string) {
	sorted := make([]observability.Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	names := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		names[i] = sanitize(t.Key)
		values[i] = t.Value
	}
	return names, values
}

var invalidChars = strings.NewReplacer(".", "_", "-", "_", " ", "_", "/", "_")

func sanitize(name string) string {
	return invalidChars.Replace(name)
}
