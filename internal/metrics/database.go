package metrics

import "github.com/prometheus/client_golang/prometheus"

// DatabaseMetrics is exported to the standard-profile backup index's
// postgres pool, via internal/database/postgres.PrometheusExporter.
type DatabaseMetrics struct {
	ConnectionsActive             prometheus.Gauge
	ConnectionsIdle               prometheus.Gauge
	QueryDurationSeconds          *prometheus.HistogramVec
	ErrorsTotal                   *prometheus.CounterVec
	QueriesTotal                  *prometheus.CounterVec
	ConnectionWaitDurationSeconds prometheus.Histogram
}

func newDatabaseMetrics(namespace string, register func(prometheus.Collector)) *DatabaseMetrics {
	const subsystem = "backupindex_db"

	m := &DatabaseMetrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Number of active pooled database connections.",
		}),
		ConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_idle",
			Help:      "Number of idle pooled database connections.",
		}),
		QueryDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Database errors by class (connection, query, timeout).",
		}, []string{"class"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queries_total",
			Help:      "Database queries by operation and outcome.",
		}, []string{"operation", "status"}),
		ConnectionWaitDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_wait_duration_seconds",
			Help:      "Time spent waiting to acquire a pooled connection.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	register(m.ConnectionsActive)
	register(m.ConnectionsIdle)
	register(m.QueryDurationSeconds)
	register(m.ErrorsTotal)
	register(m.QueriesTotal)
	register(m.ConnectionWaitDurationSeconds)

	return m
}

// CacheMetrics is exported by the Redis-backed prober/advisory caches.
type CacheMetrics struct {
	Hits   prometheus.Counter
	Misses prometheus.Counter
	Errors *prometheus.CounterVec
}

func newCacheMetrics(namespace string, register func(prometheus.Collector)) *CacheMetrics {
	const subsystem = "cache"

	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hits_total",
			Help:      "Cache lookups that found a value.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Cache operation errors by operation.",
		}, []string{"operation"}),
	}

	register(m.Hits)
	register(m.Misses)
	register(m.Errors)

	return m
}

// LockMetrics tracks the standard-profile Redis distributed lock.
type LockMetrics struct {
	AcquireTotal    *prometheus.CounterVec
	AcquireDuration prometheus.Histogram
	HeldDuration    prometheus.Histogram
}

func newLockMetrics(namespace string, register func(prometheus.Collector)) *LockMetrics {
	const subsystem = "lock"

	m := &LockMetrics{
		AcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acquire_total",
			Help:      "Distributed lock acquire attempts by outcome.",
		}, []string{"outcome"}),
		AcquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acquire_duration_seconds",
			Help:      "Time spent acquiring the distributed lock.",
			Buckets:   prometheus.DefBuckets,
		}),
		HeldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "held_duration_seconds",
			Help:      "Time the distributed lock was held before release.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	register(m.AcquireTotal)
	register(m.AcquireDuration)
	register(m.HeldDuration)

	return m
}

// InfraMetrics groups metrics for the backup index's database pool, its
// advisory caches and the standard-profile distributed lock.
type InfraMetrics struct {
	DB    *DatabaseMetrics
	Cache *CacheMetrics
	Lock  *LockMetrics
}

func newInfraMetrics(namespace string, register func(prometheus.Collector)) *InfraMetrics {
	return &InfraMetrics{
		DB:    newDatabaseMetrics(namespace, register),
		Cache: newCacheMetrics(namespace, register),
		Lock:  newLockMetrics(namespace, register),
	}
}
