package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ScannerMetrics contains all Prometheus metrics related to the
// continuous scan loop.
type ScannerMetrics struct {
	IterationsTotal   prometheus.Counter
	SkippedTicks      prometheus.Counter
	StageFailures     *prometheus.CounterVec
	IterationDuration prometheus.Histogram
	EventsTotal       *prometheus.CounterVec
	DetectionsByPest  *prometheus.CounterVec
	InFlightGauge     prometheus.Gauge
	registry          *prometheus.Registry
}

// NewScannerMetrics creates a new instance of ScannerMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewScannerMetrics(registry *prometheus.Registry) (*ScannerMetrics, error) {
	m := &ScannerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize scanner metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scanner metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ScannerMetrics.
func (m *ScannerMetrics) initMetrics() error {
	m.IterationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_iterations_total",
		Help: "Total number of completed scan iterations",
	})

	m.SkippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_skipped_ticks_total",
		Help: "Ticks skipped because the previous iteration was still in flight",
	})

	m.StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_stage_failures_total",
			Help: "Iteration failures partitioned by pipeline stage",
		},
		[]string{"stage"},
	)

	m.IterationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanner_iteration_duration_seconds",
		Help:    "Duration of scan iterations in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_events_total",
			Help: "Detection events partitioned by outcome",
		},
		[]string{"outcome"},
	)

	m.DetectionsByPest = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_detections",
			Help: "Accepted detections partitioned by pest type",
		},
		[]string{"pest"},
	)

	m.InFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_iteration_in_flight",
		Help: "Whether a scan iteration is currently executing (1) or not (0)",
	})

	return nil
}

// IncrementIterations increments the completed iteration counter.
func (m *ScannerMetrics) IncrementIterations() {
	m.IterationsTotal.Inc()
}

// IncrementSkippedTicks increments the skipped tick counter.
func (m *ScannerMetrics) IncrementSkippedTicks() {
	m.SkippedTicks.Inc()
}

// IncrementStageFailure increments the failure counter for a stage.
func (m *ScannerMetrics) IncrementStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordIterationDuration records the wall time of one iteration.
func (m *ScannerMetrics) RecordIterationDuration(seconds float64) {
	m.IterationDuration.Observe(seconds)
}

// IncrementEvents counts a dispatched event by outcome.
func (m *ScannerMetrics) IncrementEvents(outcome string) {
	m.EventsTotal.WithLabelValues(outcome).Inc()
}

// IncrementDetections counts an accepted detection by pest type.
func (m *ScannerMetrics) IncrementDetections(pest string) {
	m.DetectionsByPest.WithLabelValues(pest).Inc()
}

// SetInFlight flags whether an iteration is executing.
func (m *ScannerMetrics) SetInFlight(inFlight bool) {
	if inFlight {
		m.InFlightGauge.Set(1)
	} else {
		m.InFlightGauge.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ScannerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.IterationsTotal.Desc()
	ch <- m.SkippedTicks.Desc()
	m.StageFailures.Describe(ch)
	ch <- m.IterationDuration.Desc()
	m.EventsTotal.Describe(ch)
	m.DetectionsByPest.Describe(ch)
	ch <- m.InFlightGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ScannerMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.IterationsTotal
	ch <- m.SkippedTicks
	m.StageFailures.Collect(ch)
	ch <- m.IterationDuration
	m.EventsTotal.Collect(ch)
	m.DetectionsByPest.Collect(ch)
	ch <- m.InFlightGauge
}
