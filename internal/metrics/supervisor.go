package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SupervisorMetrics instruments the process supervisor's state machine:
// spawns, unexpected exits, restarts and the resulting state.
type SupervisorMetrics struct {
	StateTransitionsTotal *prometheus.CounterVec
	RestartsTotal         *prometheus.CounterVec
	RestartBackoffSeconds prometheus.Histogram
	UptimeSeconds         prometheus.Gauge
	CurrentState          *prometheus.GaugeVec
}

func newSupervisorMetrics(namespace string, register func(prometheus.Collector)) *SupervisorMetrics {
	const subsystem = "supervisor"

	m := &SupervisorMetrics{
		StateTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Process supervisor state transitions by from/to state.",
		}, []string{"from", "to"}),
		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restarts_total",
			Help:      "Automatic restarts attempted after an unexpected exit.",
		}, []string{"outcome"}),
		RestartBackoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restart_backoff_seconds",
			Help:      "Computed backoff delay before an automatic restart.",
			Buckets:   prometheus.DefBuckets,
		}),
		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "child_uptime_seconds",
			Help:      "Seconds since the managed sing-box process last entered Running.",
		}),
		CurrentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "1 for the supervisor's current state, 0 for all others.",
		}, []string{"state"}),
	}

	register(m.StateTransitionsTotal)
	register(m.RestartsTotal)
	register(m.RestartBackoffSeconds)
	register(m.UptimeSeconds)
	register(m.CurrentState)

	return m
}

// ObserveTransition records a state-machine transition.
func (m *SupervisorMetrics) ObserveTransition(from, to string) {
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveRestart records one auto-restart attempt and its backoff delay.
func (m *SupervisorMetrics) ObserveRestart(outcome string, backoff time.Duration) {
	m.RestartsTotal.WithLabelValues(outcome).Inc()
	m.RestartBackoffSeconds.Observe(backoff.Seconds())
}

// SetState marks state as the single active state, zeroing all known others.
func (m *SupervisorMetrics) SetState(state string, known []string) {
	for _, s := range known {
		if s == state {
			m.CurrentState.WithLabelValues(s).Set(1)
		} else {
			m.CurrentState.WithLabelValues(s).Set(0)
		}
	}
}
