package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	QueriesTotal       *prometheus.CounterVec
	ImagesTotal        prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	LastRunTimestamp   prometheus.Gauge
	RecordsAccumulated prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbscraper_requests_total",
			Help: "Total search API requests issued.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbscraper_request_duration_seconds",
			Help:    "Search API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbscraper_queries_total",
			Help: "Queries processed by outcome.",
		},
		[]string{"outcome"},
	)
	images := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbscraper_images_total",
			Help: "Total thumbnail records accumulated.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbscraper_errors_total",
			Help: "Total number of per-query errors by type.",
		},
		[]string{"error_type"},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbscraper_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)
	accumulated := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbscraper_records_accumulated",
			Help: "Records held in memory awaiting the final write.",
		},
	)

	registry.MustRegister(requests, requestDuration, queries, images, errorsTotal, lastRun, accumulated)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		QueriesTotal:       queries,
		ImagesTotal:        images,
		ErrorsTotal:        errorsTotal,
		LastRunTimestamp:   lastRun,
		RecordsAccumulated: accumulated,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncQuery counts a finished query under outcome (ok, empty, error).
func (m *Metrics) IncQuery(outcome string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
}

// AddImages adds n to the images counter and the accumulated gauge.
func (m *Metrics) AddImages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImagesTotal.Add(float64(n))
	m.RecordsAccumulated.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// MarkRunFinished stamps the completion time of a run.
func (m *Metrics) MarkRunFinished(t time.Time) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(t.Unix()))
}
