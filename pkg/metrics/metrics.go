package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Scheduler job metrics
	JobRunsTotal   *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	JobLastSuccess *prometheus.GaugeVec

	// Marketplace metrics
	MarketplaceCalls        *prometheus.CounterVec
	MarketplaceCallDuration *prometheus.HistogramVec

	// Business metrics
	TasksCreated    *prometheus.CounterVec
	StagesCompleted *prometheus.CounterVec
	TasksCompleted  prometheus.Counter
	AlertsEmitted   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "poe",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "job_runs_total",
			Help:      "Total number of scheduler job runs by outcome",
		},
		[]string{"job", "outcome"},
	)

	m.JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	m.JobLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful job run",
		},
		[]string{"job"},
	)

	m.MarketplaceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "marketplace_calls_total",
			Help:      "Total number of marketplace adapter calls",
		},
		[]string{"operation", "outcome"},
	)

	m.MarketplaceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "marketplace_call_duration_seconds",
			Help:      "Marketplace adapter call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	m.TasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "tasks_created_total",
			Help:      "Total number of production tasks created",
		},
		[]string{"species", "technology"},
	)

	m.StagesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stages_completed_total",
			Help:      "Total number of stage completions by workstation",
		},
		[]string{"workstation"},
	)

	m.TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of production tasks completed",
		},
	)

	m.AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "alerts_emitted_total",
			Help:      "Total number of alerts emitted by kind",
		},
		[]string{"kind"},
	)

	m.EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "events_published_total",
			Help:      "Total number of domain events published by outcome",
		},
		[]string{"type", "outcome"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.JobRunsTotal,
		m.JobDuration,
		m.JobLastSuccess,
		m.MarketplaceCalls,
		m.MarketplaceCallDuration,
		m.TasksCreated,
		m.StagesCompleted,
		m.TasksCompleted,
		m.AlertsEmitted,
		m.EventsPublished,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordJobRun records a scheduler job run
func (m *Metrics) RecordJobRun(job, outcome string, duration time.Duration) {
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == "success" {
		m.JobLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// RecordMarketplaceCall records a marketplace adapter call
func (m *Metrics) RecordMarketplaceCall(operation, outcome string, duration time.Duration) {
	m.MarketplaceCalls.WithLabelValues(operation, outcome).Inc()
	m.MarketplaceCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
