package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PaddyNetMetrics contains all Prometheus metrics related to the pest
// classification model.
type PaddyNetMetrics struct {
	ClassificationTotal    prometheus.Counter
	ClassificationErrors   prometheus.Counter
	ClassificationDuration prometheus.Histogram
	ModelLoadErrors        prometheus.Counter
	ModelLoadDuration      prometheus.Histogram
	ModelLoadedGauge       prometheus.Gauge
	registry               *prometheus.Registry
}

// NewPaddyNetMetrics creates a new instance of PaddyNetMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewPaddyNetMetrics(registry *prometheus.Registry) (*PaddyNetMetrics, error) {
	m := &PaddyNetMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize PaddyNet metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register PaddyNet metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PaddyNetMetrics.
func (m *PaddyNetMetrics) initMetrics() error {
	m.ClassificationTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paddynet_classifications_total",
		Help: "Total number of PaddyNet inference passes",
	})

	m.ClassificationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paddynet_classification_errors_total",
		Help: "Total number of failed PaddyNet inference passes",
	})

	m.ClassificationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paddynet_classification_duration_seconds",
		Help:    "Duration of PaddyNet inference passes in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.ModelLoadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paddynet_model_load_errors_total",
		Help: "Total number of failed PaddyNet model load attempts",
	})

	m.ModelLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paddynet_model_load_duration_seconds",
		Help:    "Duration of successful PaddyNet model loads in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.ModelLoadedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paddynet_model_loaded",
		Help: "Whether the PaddyNet model is resident (1) or not (0)",
	})

	return nil
}

// IncrementClassifications increments the inference pass counter.
func (m *PaddyNetMetrics) IncrementClassifications() {
	m.ClassificationTotal.Inc()
}

// IncrementClassificationErrors increments the inference error counter.
func (m *PaddyNetMetrics) IncrementClassificationErrors() {
	m.ClassificationErrors.Inc()
}

// RecordClassificationDuration records the wall time of one inference pass.
func (m *PaddyNetMetrics) RecordClassificationDuration(seconds float64) {
	m.ClassificationDuration.Observe(seconds)
}

// IncrementLoadFailures increments the model load failure counter.
func (m *PaddyNetMetrics) IncrementLoadFailures() {
	m.ModelLoadErrors.Inc()
	m.ModelLoadedGauge.Set(0)
}

// RecordLoadDuration records a successful model load.
func (m *PaddyNetMetrics) RecordLoadDuration(seconds float64) {
	m.ModelLoadDuration.Observe(seconds)
	m.ModelLoadedGauge.Set(1)
}

// Describe implements the prometheus.Collector interface.
func (m *PaddyNetMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ClassificationTotal.Desc()
	ch <- m.ClassificationErrors.Desc()
	ch <- m.ClassificationDuration.Desc()
	ch <- m.ModelLoadErrors.Desc()
	ch <- m.ModelLoadDuration.Desc()
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PaddyNetMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ClassificationTotal
	ch <- m.ClassificationErrors
	ch <- m.ClassificationDuration
	ch <- m.ModelLoadErrors
	ch <- m.ModelLoadDuration
	ch <- m.ModelLoadedGauge
}
