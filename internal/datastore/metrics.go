// Package datastore integration with the observability metrics package
package datastore

import (
	"sync"

	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

// Metrics is a type alias for metrics.DatastoreMetrics, letting callers
// hold the collector without importing the metrics package.
type Metrics = metrics.DatastoreMetrics

// Operation labels shared with the metrics package.
const (
	OpDbQuery  = metrics.OpDbQuery
	OpDbInsert = metrics.OpDbInsert
	OpDbDelete = metrics.OpDbDelete
	OpSearch   = metrics.OpSearch
)

var (
	globalMetrics *Metrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the metrics instance for the datastore package.
// Subsequent calls are ignored.
func SetMetrics(m *Metrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

// getMetrics returns the current metrics instance, nil when unset.
func getMetrics() *Metrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}

func recordOperation(operation, status string) {
	if m := getMetrics(); m != nil {
		m.RecordOperation(operation, status)
	}
}

func recordOperationDuration(operation string, seconds float64) {
	if m := getMetrics(); m != nil {
		m.RecordOperationDuration(operation, seconds)
	}
}
