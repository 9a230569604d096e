// Package observability provides metrics and monitoring capabilities for the PalayGuard application.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/diskmanager"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/observability/metrics"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	PaddyNet     *metrics.PaddyNetMetrics
	Localizer    *metrics.LocalizerMetrics
	Scanner      *metrics.ScannerMetrics
	MQTT         *metrics.MQTTMetrics
	Datastore    *metrics.DatastoreMetrics
	Notification *metrics.NotificationMetrics
	DiskManager  *metrics.DiskManagerMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	paddynetMetrics, err := metrics.NewPaddyNetMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create PaddyNet metrics: %w", err)
	}

	localizerMetrics, err := metrics.NewLocalizerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Localizer metrics: %w", err)
	}

	scannerMetrics, err := metrics.NewScannerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Scanner metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datastore metrics: %w", err)
	}

	notificationMetrics, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Notification metrics: %w", err)
	}

	diskManagerMetrics, err := metrics.NewDiskManagerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create DiskManager metrics: %w", err)
	}

	m := &Metrics{
		registry:     registry,
		PaddyNet:     paddynetMetrics,
		Localizer:    localizerMetrics,
		Scanner:      scannerMetrics,
		MQTT:         mqttMetrics,
		Datastore:    datastoreMetrics,
		Notification: notificationMetrics,
		DiskManager:  diskManagerMetrics,
	}

	// Initialize inference tracing with metrics
	initializeTracing(paddynetMetrics, localizerMetrics)

	// Initialize diskmanager and datastore with metrics
	diskmanager.SetMetrics(diskManagerMetrics)
	datastore.SetMetrics(datastoreMetrics)

	return m, nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// metricsHandler is the HTTP handler for the /metrics endpoint.
func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	h.ServeHTTP(w, r)
}

// initializeTracing sets up the inference stages with metrics
func initializeTracing(paddynetMetrics *metrics.PaddyNetMetrics, localizerMetrics *metrics.LocalizerMetrics) {
	paddynet.SetMetrics(paddynetMetrics)
	localizer.SetMetrics(localizerMetrics)
}
