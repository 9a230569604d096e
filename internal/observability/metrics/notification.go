// Package metrics provides custom Prometheus metrics for notification operations.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains all Prometheus metrics related to push
// provider operations.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	Suppressed       prometheus.Counter
	registry         *prometheus.Registry
}

// NewNotificationMetrics creates a new instance of NotificationMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize notification metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for NotificationMetrics.
func (m *NotificationMetrics) initMetrics() error {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of notification deliveries partitioned by status",
		},
		[]string{"status"},
	)

	m.DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_delivery_duration_seconds",
		Help:    "Time taken to push one notification to all providers",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10),
	})

	m.Suppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_suppressed_total",
		Help: "Notifications suppressed by danger level or rate limiting",
	})

	return nil
}

// RecordDelivery counts one delivery attempt with its outcome status
// ("success" or "error").
func (m *NotificationMetrics) RecordDelivery(status string) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordDeliveryDuration records the wall time of one delivery fan-out.
func (m *NotificationMetrics) RecordDeliveryDuration(seconds float64) {
	m.DeliveryDuration.Observe(seconds)
}

// IncrementSuppressed counts a notification withheld before dispatch.
func (m *NotificationMetrics) IncrementSuppressed() {
	m.Suppressed.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	ch <- m.DeliveryDuration.Desc()
	ch <- m.Suppressed.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	ch <- m.DeliveryDuration
	ch <- m.Suppressed
}
