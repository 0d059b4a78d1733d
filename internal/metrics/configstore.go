package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConfigStoreMetrics instruments the configuration document store's
// 8-step write discipline and read-path operations.
type ConfigStoreMetrics struct {
	WritesTotal     *prometheus.CounterVec
	WriteDuration   prometheus.Histogram
	ReadsTotal      *prometheus.CounterVec
	LockWaitSeconds prometheus.Histogram
}

func newConfigStoreMetrics(namespace string, register func(prometheus.Collector)) *ConfigStoreMetrics {
	const subsystem = "configstore"

	m := &ConfigStoreMetrics{
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_total",
			Help:      "Configuration document writes by reason tag and outcome.",
		}, []string{"reason", "outcome"}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_duration_seconds",
			Help:      "Time to run the full validate+backup+write+reload discipline.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reads_total",
			Help:      "Configuration document reads by collection kind.",
		}, []string{"collection"}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting to acquire the write lock.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	register(m.WritesTotal)
	register(m.WriteDuration)
	register(m.ReadsTotal)
	register(m.LockWaitSeconds)

	return m
}

// ObserveWrite records one completed write-discipline run.
func (m *ConfigStoreMetrics) ObserveWrite(reason, outcome string, d time.Duration) {
	m.WritesTotal.WithLabelValues(reason, outcome).Inc()
	m.WriteDuration.Observe(d.Seconds())
}

// ObserveRead records one read against a collection.
func (m *ConfigStoreMetrics) ObserveRead(collection string) {
	m.ReadsTotal.WithLabelValues(collection).Inc()
}

// ObserveLockWait records time spent blocked on the write lock.
func (m *ConfigStoreMetrics) ObserveLockWait(d time.Duration) {
	m.LockWaitSeconds.Observe(d.Seconds())
}
