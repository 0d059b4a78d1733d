package metrics

import "github.com/prometheus/client_golang/prometheus"

// RetryMetrics instruments internal/core/resilience.WithRetry. Method names
// and signatures are dictated by that package's call sites.
type RetryMetrics struct {
	attempts     *prometheus.HistogramVec
	finalOutcome *prometheus.CounterVec
	backoff      *prometheus.HistogramVec
}

func newRetryMetrics(namespace string, register func(prometheus.Collector)) *RetryMetrics {
	const subsystem = "retry"

	m := &RetryMetrics{
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single retried-operation attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status", "error_type"}),
		finalOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "final_outcome_total",
			Help:      "Final outcome of a retried operation, labeled by operation and status.",
		}, []string{"operation", "status"}),
		backoff: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backoff_seconds",
			Help:      "Backoff delay applied between retry attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	register(m.attempts)
	register(m.finalOutcome)
	register(m.backoff)

	return m
}

// RecordAttempt records one attempt's outcome and duration.
func (m *RetryMetrics) RecordAttempt(operation, status, errorType string, durationSeconds float64) {
	m.attempts.WithLabelValues(operation, status, errorType).Observe(durationSeconds)
}

// RecordFinalAttempt records the terminal outcome of a WithRetry call.
func (m *RetryMetrics) RecordFinalAttempt(operation, status string, attempts int) {
	m.finalOutcome.WithLabelValues(operation, status).Inc()
}

// RecordBackoff records the delay applied before the next retry attempt.
func (m *RetryMetrics) RecordBackoff(operation string, delaySeconds float64) {
	m.backoff.WithLabelValues(operation).Observe(delaySeconds)
}
