package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProberMetrics instruments the outbound latency prober.
type ProberMetrics struct {
	ProbesTotal      *prometheus.CounterVec
	LatencySeconds   *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

func newProberMetrics(namespace string, register func(prometheus.Collector)) *ProberMetrics {
	const subsystem = "prober"

	m := &ProberMetrics{
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "probes_total",
			Help:      "Outbound probes by outbound tag and outcome.",
		}, []string{"outbound", "outcome"}),
		LatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "latency_seconds",
			Help:      "Measured round-trip latency to the probe target.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outbound"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Latency probe results served from cache instead of a live request.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Latency probe requests that required a live round trip.",
		}),
	}

	register(m.ProbesTotal)
	register(m.LatencySeconds)
	register(m.CacheHitsTotal)
	register(m.CacheMissesTotal)

	return m
}

// ObserveProbe records one probe outcome and, on success, its latency.
func (m *ProberMetrics) ObserveProbe(outbound, outcome string, latency time.Duration) {
	m.ProbesTotal.WithLabelValues(outbound, outcome).Inc()
	if outcome == "success" {
		m.LatencySeconds.WithLabelValues(outbound).Observe(latency.Seconds())
	}
}

// ObserveCacheLookup records whether a cached latency probe result was used.
func (m *ProberMetrics) ObserveCacheLookup(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}
