package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for snapshot retention
// sweeps.
type DiskManagerMetrics struct {
	registry *prometheus.Registry

	sweepsTotal          *prometheus.CounterVec
	filesDeletedTotal    prometheus.Counter
	bytesFreedTotal      prometheus.Counter
	sweepDurationSeconds prometheus.Histogram
}

// NewDiskManagerMetrics creates and registers new disk manager metrics.
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize disk manager metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register disk manager metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for DiskManagerMetrics.
func (m *DiskManagerMetrics) initMetrics() error {
	m.sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskmanager_sweeps_total",
			Help: "Total number of retention sweeps partitioned by status",
		},
		[]string{"status"},
	)

	m.filesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diskmanager_files_deleted_total",
		Help: "Total number of snapshots deleted by retention sweeps",
	})

	m.bytesFreedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diskmanager_bytes_freed_total",
		Help: "Total bytes freed by retention sweeps",
	})

	m.sweepDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "diskmanager_sweep_duration_seconds",
		Help:    "Time taken for retention sweeps",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	return nil
}

// RecordSweep counts one retention sweep with its outcome status
// ("success" or "error").
func (m *DiskManagerMetrics) RecordSweep(status string) {
	m.sweepsTotal.WithLabelValues(status).Inc()
}

// AddFilesDeleted adds to the deleted snapshot counter.
func (m *DiskManagerMetrics) AddFilesDeleted(count int) {
	m.filesDeletedTotal.Add(float64(count))
}

// AddBytesFreed adds to the freed byte counter.
func (m *DiskManagerMetrics) AddBytesFreed(bytes int64) {
	m.bytesFreedTotal.Add(float64(bytes))
}

// RecordSweepDuration records the wall time of one sweep.
func (m *DiskManagerMetrics) RecordSweepDuration(seconds float64) {
	m.sweepDurationSeconds.Observe(seconds)
}

// Describe implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.sweepsTotal.Describe(ch)
	ch <- m.filesDeletedTotal.Desc()
	ch <- m.bytesFreedTotal.Desc()
	ch <- m.sweepDurationSeconds.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.sweepsTotal.Collect(ch)
	ch <- m.filesDeletedTotal
	ch <- m.bytesFreedTotal
	ch <- m.sweepDurationSeconds
}
