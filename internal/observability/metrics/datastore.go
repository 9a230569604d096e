// Package metrics provides datastore metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations.
type DatastoreMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	detectionsSaved     prometheus.Counter
	detectionsDeleted   prometheus.Counter
}

// NewDatastoreMetrics creates a new instance of DatastoreMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize datastore metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for DatastoreMetrics.
func (m *DatastoreMetrics) initMetrics() error {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_operations_total",
			Help: "Total number of database operations partitioned by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.detectionsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datastore_detections_saved_total",
		Help: "Total number of detection rows persisted",
	})

	m.detectionsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datastore_detections_deleted_total",
		Help: "Total number of detection rows deleted",
	})

	return nil
}

// RecordOperation counts one database operation with its outcome status
// ("success" or "error").
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordOperationDuration records the wall time of one database operation.
func (m *DatastoreMetrics) RecordOperationDuration(operation string, seconds float64) {
	m.dbOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// IncrementDetectionsSaved increments the persisted detection counter.
func (m *DatastoreMetrics) IncrementDetectionsSaved() {
	m.detectionsSaved.Inc()
}

// IncrementDetectionsDeleted increments the deleted detection counter.
func (m *DatastoreMetrics) IncrementDetectionsDeleted() {
	m.detectionsDeleted.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dbOperationsTotal.Describe(ch)
	m.dbOperationDuration.Describe(ch)
	ch <- m.detectionsSaved.Desc()
	ch <- m.detectionsDeleted.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dbOperationsTotal.Collect(ch)
	m.dbOperationDuration.Collect(ch)
	ch <- m.detectionsSaved
	ch <- m.detectionsDeleted
}
