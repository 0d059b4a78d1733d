package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidatorMetrics tracks external-binary validation subprocess runs.
// Advisory-cache hit/miss tracking reuses CacheMetrics rather than
// duplicating counters here.
type ValidatorMetrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	TimeoutsTotal   prometheus.Counter
}

func newValidatorMetrics(namespace string, register func(prometheus.Collector)) *ValidatorMetrics {
	m := &ValidatorMetrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "runs_total",
			Help:      "External validation binary invocations by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "run_duration_seconds",
			Help:      "Duration of external validation binary invocations.",
			Buckets:   prometheus.DefBuckets,
		}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "timeouts_total",
			Help:      "External validation binary invocations that exceeded their timeout.",
		}),
	}
	register(m.RunsTotal)
	register(m.RunDuration)
	register(m.TimeoutsTotal)
	return m
}

// ObserveRun records one subprocess invocation.
func (m *ValidatorMetrics) ObserveRun(outcome string, d time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveTimeout records a subprocess invocation that was killed for
// exceeding its timeout.
func (m *ValidatorMetrics) ObserveTimeout() {
	m.TimeoutsTotal.Inc()
}
