// Package monitoring exposes Prometheus metrics for provisioning attempts and
// the HTTP service that triggers them.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoreg"

// Outcome labels for finished attempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	AttemptsTotal    *prometheus.CounterVec
	AttemptsInFlight prometheus.Gauge
	AttemptDuration  *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	Warnings         *prometheus.CounterVec
	MessagesReceived prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. Passing nil uses a private
// registry, which keeps tests and multiple instances from colliding.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of provisioning attempts by outcome",
			},
			[]string{"outcome"},
		),

		AttemptsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "attempts_in_flight",
				Help:      "Number of provisioning attempts currently running",
			},
		),

		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of provisioning attempts",
				Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 300, 600},
			},
			[]string{"outcome"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Attempt-ending failures by workflow stage",
			},
			[]string{"stage"},
		),

		Warnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempt_warnings_total",
				Help:      "Non-fatal problems recorded during attempts",
			},
			[]string{"stage"},
		),

		MessagesReceived: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inbox_messages_received",
				Help:      "Messages returned by the inbox poll per attempt",
				Buckets:   []float64{0, 1, 2, 3, 5, 10},
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: reg,
	}
}

// AttemptStarted marks an attempt as running.
func (m *Metrics) AttemptStarted() {
	m.AttemptsInFlight.Inc()
}

// AttemptFinished records the outcome and duration of an attempt.
func (m *Metrics) AttemptFinished(success bool, d time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.AttemptsInFlight.Dec()
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.AttemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// StageFailed counts an attempt-ending failure at stage.
func (m *Metrics) StageFailed(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// StageWarning counts a non-fatal problem at stage.
func (m *Metrics) StageWarning(stage string) {
	m.Warnings.WithLabelValues(stage).Inc()
}

// InboxPolled records how many messages a poll returned.
func (m *Metrics) InboxPolled(messages int) {
	m.MessagesReceived.Observe(float64(messages))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMetrics is gin middleware recording request counts and latency.
func (m *Metrics) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
