// Package metrics exposes pipeline counters and histograms for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const namespace = "newsdigest"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Fetched       prometheus.Counter
	Selected      prometheus.Counter
	Committed     prometheus.Counter
	LastCommitted prometheus.Gauge
	Images        *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
}

var _ ports.Metrics = (*Metrics)(nil)

// New creates and registers the collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_fetched_total",
			Help:      "Feed entries fetched",
		}),
		Selected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_selected_total",
			Help:      "Feed entries that survived selection",
		}),
		Committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_committed_total",
			Help:      "News items persisted",
		}),
		LastCommitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_last_batch",
			Help:      "News items persisted by the most recent run",
		}),
		Images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image resolutions by outcome",
		}, []string{"outcome"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_fallbacks_total",
			Help:      "Scripts produced by the local fallback",
		}, []string{"script"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Digest messages by kind and outcome",
		}, []string{"kind", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Runs, m.RunDuration,
		m.Fetched, m.Selected, m.Committed, m.LastCommitted,
		m.Images, m.Fallbacks, m.Deliveries,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveSelection(fetched, selected int) {
	m.Fetched.Add(float64(fetched))
	m.Selected.Add(float64(selected))
}

func (m *Metrics) ObserveCommitted(n int) {
	m.Committed.Add(float64(n))
	m.LastCommitted.Set(float64(n))
}

func (m *Metrics) ObserveImage(outcome domain.Outcome) {
	m.Images.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObserveFallback(script string) {
	m.Fallbacks.WithLabelValues(script).Inc()
}

func (m *Metrics) ObserveDelivery(kind domain.DeliveryKind, outcome domain.Outcome) {
	m.Deliveries.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
