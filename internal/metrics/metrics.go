// Package metrics exports Prometheus metrics for HTTP traffic, model
// invocations, and billing activity.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ModelRequestsTotal   *prometheus.CounterVec
	ModelRequestDuration *prometheus.HistogramVec
	ModelTokensTotal     *prometheus.CounterVec
	ModelCostTotal       *prometheus.CounterVec

	DepositsTotal      prometheus.Counter
	DepositAmountTotal prometheus.Counter
	InsufficientFunds  prometheus.Counter
	SignupsTotal       prometheus.Counter
}

// Get returns the process-wide metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "multichat",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being processed",
		},
	)

	m.ModelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "model",
			Name:      "requests_total",
			Help:      "Total model invocations by model and outcome",
		},
		[]string{"model", "status"},
	)

	m.ModelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "multichat",
			Subsystem: "model",
			Name:      "request_duration_seconds",
			Help:      "Model invocation duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	m.ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Total tokens consumed by model and direction",
		},
		[]string{"model", "direction"},
	)

	m.ModelCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "billing",
			Name:      "usage_cost_usd_total",
			Help:      "Total metered usage cost in USD by model and kind",
		},
		[]string{"model", "kind"},
	)

	m.DepositsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "billing",
			Name:      "deposits_total",
			Help:      "Total credited deposits",
		},
	)

	m.DepositAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "billing",
			Name:      "deposit_usd_total",
			Help:      "Total deposited amount in USD",
		},
	)

	m.InsufficientFunds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "billing",
			Name:      "insufficient_funds_total",
			Help:      "Requests rejected at settlement for insufficient balance",
		},
	)

	m.SignupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multichat",
			Subsystem: "users",
			Name:      "signups_total",
			Help:      "Total user registrations",
		},
	)

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordModelCall records one model invocation outcome.
func (m *Metrics) RecordModelCall(model string, ok bool, duration time.Duration, inputTokens, outputTokens int) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.ModelRequestsTotal.WithLabelValues(model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	if inputTokens > 0 {
		m.ModelTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ModelTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordUsageCost records a settled charge.
func (m *Metrics) RecordUsageCost(model, kind string, cost float64) {
	if cost > 0 {
		m.ModelCostTotal.WithLabelValues(model, kind).Add(cost)
	}
}

// RecordDeposit records a credited deposit.
func (m *Metrics) RecordDeposit(amount float64) {
	m.DepositsTotal.Inc()
	m.DepositAmountTotal.Add(amount)
}
