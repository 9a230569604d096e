package scanner

import (
	"sync"

	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

// Global metrics instance (set by the observability wiring at startup)
var (
	globalMetrics *metrics.ScannerMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the global metrics instance for the scan loop.
// Only the first call takes effect.
func SetMetrics(m *metrics.ScannerMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

func getMetrics() *metrics.ScannerMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}
