// Package metrics exposes relay activity in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/HendryAvila/toolrelay/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolrelay"

// unknownToolLabel replaces caller-supplied names of unregistered tools so
// label cardinality stays bounded.
const unknownToolLabel = "_unknown"

// Metrics owns a private Prometheus registry with the relay's collectors.
type Metrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the relay collectors. activeSessions is sampled on every
// scrape.
func New(activeSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	registry.MustRegister(
		m.calls,
		m.duration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open SSE sessions.",
		}, func() float64 { return float64(activeSessions()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveToolCall implements tools.Observer.
func (m *Metrics) ObserveToolCall(tool string, outcome tools.Outcome, elapsed time.Duration) {
	if outcome == tools.OutcomeUnknown {
		tool = unknownToolLabel
	}
	m.calls.WithLabelValues(tool, string(outcome)).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
