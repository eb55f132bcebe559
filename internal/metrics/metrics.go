package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline measurements
type Recorder interface {
	StageFinished(stage, status string, started time.Time)
	ProductsLoaded(stage, outcome string, n int)
}

// Nop discards every measurement
type Nop struct{}

func (Nop) StageFinished(stage, status string, started time.Time) {}
func (Nop) ProductsLoaded(stage, outcome string, n int)            {}

// Metrics holds the Prometheus collectors of the pipeline
type Metrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	products    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dtwh",
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by final status.",
		}, []string{"stage", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dtwh",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stage runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dtwh",
			Name:      "stage_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a stage.",
		}, []string{"stage"}),
		products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dtwh",
			Name:      "products_loaded_total",
			Help:      "Products handled by a stage, by outcome.",
		}, []string{"stage", "outcome"}),
	}
	m.registry.MustRegister(
		m.runs,
		m.duration,
		m.lastSuccess,
		m.products,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) StageFinished(stage, status string, started time.Time) {
	m.runs.WithLabelValues(stage, status).Inc()
	m.duration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	switch status {
	case "Success", "Completed", "Partial Success":
		m.lastSuccess.WithLabelValues(stage).SetToCurrentTime()
	}
}

func (m *Metrics) ProductsLoaded(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.products.WithLabelValues(stage, outcome).Add(float64(n))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
