package paddynet

import (
	"sync"

	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

// Global metrics instance (set by the observability wiring at startup)
var (
	globalMetrics *metrics.PaddyNetMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the global metrics instance for the classifier.
// Only the first call takes effect.
func SetMetrics(m *metrics.PaddyNetMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

func getMetrics() *metrics.PaddyNetMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}
