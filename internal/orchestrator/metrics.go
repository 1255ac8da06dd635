package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestration activity.
type Metrics struct {
	delegations    *prometheus.CounterVec
	toolRounds     *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	capsReached    *prometheus.CounterVec
	reports        *prometheus.CounterVec
	reportDuration prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics registered with the global Prometheus
// registry. The collectors are created once so building several engines in
// one process does not panic on duplicate registration.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics registered with reg. Pass a fresh
// registry in tests. Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		delegations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "delegations_total",
			Help:      "Worker dispatches by worker.",
		}, []string{"worker"}),
		toolRounds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "worker_tool_rounds",
			Help:      "Tool-calling rounds per worker run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}, []string{"worker"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "transitions_total",
			Help:      "Router decisions by action.",
		}, []string{"action"}),
		capsReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "caps_reached_total",
			Help:      "Iteration caps that stopped work, by cap.",
		}, []string{"cap"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "reports_total",
			Help:      "Finished report tasks by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tickerdesk",
			Subsystem: "orchestrator",
			Name:      "report_duration_seconds",
			Help:      "Wall time of a report task.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(m.delegations, m.toolRounds, m.transitions, m.capsReached, m.reports, m.reportDuration)
	return m
}

func (m *Metrics) recordDelegation(worker string, toolRounds int) {
	if m == nil {
		return
	}
	m.delegations.WithLabelValues(worker).Inc()
	m.toolRounds.WithLabelValues(worker).Observe(float64(toolRounds))
}

func (m *Metrics) recordTransition(action Action) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) recordCap(name string) {
	if m == nil {
		return
	}
	m.capsReached.WithLabelValues(name).Inc()
}

func (m *Metrics) recordReport(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
	m.reportDuration.Observe(elapsed.Seconds())
}
