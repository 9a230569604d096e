package diskmanager

import (
	"sync"

	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

var (
	globalMetrics *metrics.DiskManagerMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the metrics instance for the diskmanager package.
// Subsequent calls are ignored.
func SetMetrics(m *metrics.DiskManagerMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

// getMetrics returns the current metrics instance, nil when unset.
func getMetrics() *metrics.DiskManagerMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}
