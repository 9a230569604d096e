package localizer

import (
	"sync"

	"github.com/palayguard/palayguard-go/internal/observability/metrics"
)

// Global metrics instance (set by the observability wiring at startup)
var (
	globalMetrics *metrics.LocalizerMetrics
	metricsMutex  sync.RWMutex
	metricsOnce   sync.Once
)

// SetMetrics sets the global metrics instance for detector strategies.
// Only the first call takes effect.
func SetMetrics(m *metrics.LocalizerMetrics) {
	metricsOnce.Do(func() {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()
		globalMetrics = m
	})
}

func getMetrics() *metrics.LocalizerMetrics {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return globalMetrics
}
