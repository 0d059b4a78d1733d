package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackupMetrics instruments backup creation, rotation and the structural
// diff/import/export engine.
type BackupMetrics struct {
	CreatedTotal     prometheus.Counter
	DedupedTotal     prometheus.Counter
	RotatedTotal     prometheus.Counter
	DiffsTotal       *prometheus.CounterVec
	BackupSizeBytes  prometheus.Histogram
	IndexSyncSeconds prometheus.Histogram
}

func newBackupMetrics(namespace string, register func(prometheus.Collector)) *BackupMetrics {
	const subsystem = "backup"

	m := &BackupMetrics{
		CreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "created_total",
			Help:      "Backup records created.",
		}),
		DedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deduped_total",
			Help:      "Backup creates that matched an existing content hash.",
		}),
		RotatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rotated_total",
			Help:      "Backup records deleted by retention rotation.",
		}),
		DiffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "diffs_total",
			Help:      "Structural diffs computed, labeled by change kind.",
		}, []string{"kind"}),
		BackupSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "size_bytes",
			Help:      "Size of created backup content.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
		IndexSyncSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "index_sync_seconds",
			Help:      "Time to write through to the standard-profile backup index.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	register(m.CreatedTotal)
	register(m.DedupedTotal)
	register(m.RotatedTotal)
	register(m.DiffsTotal)
	register(m.BackupSizeBytes)
	register(m.IndexSyncSeconds)

	return m
}

// ObserveCreate records one backup creation, whether new content or a dedup hit.
func (m *BackupMetrics) ObserveCreate(deduped bool, sizeBytes int) {
	if deduped {
		m.DedupedTotal.Inc()
		return
	}
	m.CreatedTotal.Inc()
	m.BackupSizeBytes.Observe(float64(sizeBytes))
}

// ObserveRotation records one rotation-driven deletion.
func (m *BackupMetrics) ObserveRotation() {
	m.RotatedTotal.Inc()
}

// ObserveDiff records one diff computation by change kind (added/modified/removed).
func (m *BackupMetrics) ObserveDiff(kind string, count int) {
	m.DiffsTotal.WithLabelValues(kind).Add(float64(count))
}

// ObserveIndexSync records time spent writing through to the backup index.
func (m *BackupMetrics) ObserveIndexSync(d time.Duration) {
	m.IndexSyncSeconds.Observe(d.Seconds())
}
