package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LocalizerMetrics contains all Prometheus metrics related to region
// proposal, partitioned by detector strategy.
type LocalizerMetrics struct {
	DetectRequests *prometheus.CounterVec
	DetectErrors   *prometheus.CounterVec
	DetectDuration *prometheus.HistogramVec
	ResponseShapes *prometheus.CounterVec
	RegionCount    *prometheus.HistogramVec
	registry       *prometheus.Registry
}

// NewLocalizerMetrics creates a new instance of LocalizerMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewLocalizerMetrics(registry *prometheus.Registry) (*LocalizerMetrics, error) {
	m := &LocalizerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize localizer metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register localizer metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for LocalizerMetrics.
func (m *LocalizerMetrics) initMetrics() error {
	m.DetectRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localizer_detect_requests_total",
			Help: "Total number of successful region proposal passes",
		},
		[]string{"strategy"},
	)

	m.DetectErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localizer_detect_errors_total",
			Help: "Total number of failed region proposal passes",
		},
		[]string{"strategy"},
	)

	m.DetectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localizer_detect_duration_seconds",
			Help:    "Duration of region proposal passes in seconds",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"strategy"},
	)

	m.ResponseShapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localizer_response_shapes_total",
			Help: "Remote detection responses partitioned by payload shape",
		},
		[]string{"shape"},
	)

	m.RegionCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localizer_regions_proposed",
			Help:    "Number of regions proposed per pass",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
		[]string{"strategy"},
	)

	return nil
}

// IncrementDetectRequests increments the successful pass counter for a strategy.
func (m *LocalizerMetrics) IncrementDetectRequests(strategy string) {
	m.DetectRequests.WithLabelValues(strategy).Inc()
}

// IncrementDetectErrors increments the failed pass counter for a strategy.
func (m *LocalizerMetrics) IncrementDetectErrors(strategy string) {
	m.DetectErrors.WithLabelValues(strategy).Inc()
}

// RecordDetectDuration records the wall time of one pass for a strategy.
func (m *LocalizerMetrics) RecordDetectDuration(strategy string, seconds float64) {
	m.DetectDuration.WithLabelValues(strategy).Observe(seconds)
}

// IncrementResponseShape counts a remote response payload shape.
func (m *LocalizerMetrics) IncrementResponseShape(shape string) {
	m.ResponseShapes.WithLabelValues(shape).Inc()
}

// RecordRegionCount records how many regions one pass proposed.
func (m *LocalizerMetrics) RecordRegionCount(strategy string, count int) {
	m.RegionCount.WithLabelValues(strategy).Observe(float64(count))
}

// Describe implements the prometheus.Collector interface.
func (m *LocalizerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DetectRequests.Describe(ch)
	m.DetectErrors.Describe(ch)
	m.DetectDuration.Describe(ch)
	m.ResponseShapes.Describe(ch)
	m.RegionCount.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *LocalizerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DetectRequests.Collect(ch)
	m.DetectErrors.Collect(ch)
	m.DetectDuration.Collect(ch)
	m.ResponseShapes.Collect(ch)
	m.RegionCount.Collect(ch)
}
