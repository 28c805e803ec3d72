package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// RefreshTotal counts refresh attempts by account and outcome
	RefreshTotal *prometheus.CounterVec
	// QuotaUsage tracks quota usage percentage by account
	QuotaUsage *prometheus.GaugeVec
	// JobDuration tracks job execution duration by job id
	JobDuration *prometheus.HistogramVec
	// JobExecutionsTotal counts job executions by job id and status
	JobExecutionsTotal *prometheus.CounterVec
	// DaemonUp is 1 while the daemon is in the running state
	DaemonUp prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics on a private
// registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Total number of credential refresh attempts",
			},
			[]string{"account", "outcome"},
		),
		QuotaUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_usage_percent",
				Help:      "Current quota usage percentage",
			},
			[]string{"account"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Job execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job_id"},
		),
		JobExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_executions_total",
				Help:      "Total number of job executions",
			},
			[]string{"job_id", "status"},
		),
		DaemonUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "daemon_up",
				Help:      "Whether the daemon is running",
			},
		),
	}

	registry.MustRegister(
		m.RefreshTotal,
		m.QuotaUsage,
		m.JobDuration,
		m.JobExecutionsTotal,
		m.DaemonUp,
	)

	return m
}

// RecordRefresh records one refresh attempt outcome.
func (m *Metrics) RecordRefresh(account string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.RefreshTotal.WithLabelValues(account, outcome).Inc()
}

// RecordQuotaUsage records current quota usage for an account.
func (m *Metrics) RecordQuotaUsage(account string, percentage float64) {
	m.QuotaUsage.WithLabelValues(account).Set(percentage)
}

// RecordJobExecution records one completed job run.
func (m *Metrics) RecordJobExecution(jobID, status string, durationSeconds float64) {
	m.JobExecutionsTotal.WithLabelValues(jobID, status).Inc()
	m.JobDuration.WithLabelValues(jobID).Observe(durationSeconds)
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
