// Package metrics provides Prometheus instrumentation for the trading pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus instruments for pipeline activity.
type Recorder struct {
	cyclesTotal     *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	analystFailures *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
}

// New creates a metrics recorder registered on reg. Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_cycles_total",
				Help: "Total number of trading cycles by outcome",
			},
			[]string{"status"},
		),
		tradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_trades_total",
				Help: "Total number of executed trades",
			},
			[]string{"side", "mode"},
		),
		analystFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_analyst_failures_total",
				Help: "Total number of analyst evaluation failures",
			},
			[]string{"analyst"},
		),
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_decisions_total",
				Help: "Total number of validated decisions by action",
			},
			[]string{"action"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_cycle_duration_seconds",
				Help:    "Duration of full trading cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordCycle records a completed cycle with its outcome ("success" or
// "failure").
func (r *Recorder) RecordCycle(status string, seconds float64) {
	r.cyclesTotal.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(seconds)
}

// RecordTrade records an executed trade.
func (r *Recorder) RecordTrade(side, mode string) {
	r.tradesTotal.WithLabelValues(side, mode).Inc()
}

// RecordAnalystFailure records a failed analyst evaluation.
func (r *Recorder) RecordAnalystFailure(analyst string) {
	r.analystFailures.WithLabelValues(analyst).Inc()
}

// RecordDecision records a validated decision.
func (r *Recorder) RecordDecision(action string) {
	r.decisionsTotal.WithLabelValues(action).Inc()
}
