package analysis

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/analysis/scanner"
	"github.com/palayguard/palayguard-go/internal/api"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/diskmanager"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/mqtt"
	"github.com/palayguard/palayguard-go/internal/notification"
	"github.com/palayguard/palayguard-go/internal/observability"
	"github.com/palayguard/palayguard-go/internal/telemetry"
)

// retentionSweepInterval is how often the snapshot retention policy runs.
const retentionSweepInterval = 1 * time.Hour

// RealtimeAnalysis starts the continuous detection daemon and blocks
// until a termination signal arrives.
func RealtimeAnalysis(settings *conf.Settings) error {
	printHostSummary()

	fmt.Printf("Starting scanner in realtime mode. Confidence floor: %d, margin floor: %d, interval: %d ms\n",
		settings.Detection.MinConfidence,
		settings.Detection.MinMargin,
		settings.Realtime.Scan.Interval)

	// Initialize database access.
	dataStore := datastore.New(settings)
	if err := dataStore.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer closeDataStore(dataStore)

	// Initialize Prometheus metrics manager.
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}
	scanner.SetMetrics(metrics.Scanner)

	stages, err := buildPipeline(settings)
	if err != nil {
		return err
	}
	defer stages.close()

	source, err := frame.New(settings)
	if err != nil {
		return fmt.Errorf("building frame source: %w", err)
	}

	mqttClient := connectMqtt(settings, metrics)
	if mqttClient != nil {
		defer mqttClient.Disconnect()
	}

	notifier := buildNotifier(settings, metrics)

	proc := processor.New(settings, dataStore, stages.catalog, mqttClient, notifier)
	scn := scanner.New(settings, source, stages.localizer, stages.classifier, proc.Engine, proc)

	// quitChan signals the support goroutines to stop.
	quitChan := make(chan struct{})
	var wg sync.WaitGroup

	startTelemetryEndpoint(&wg, settings, metrics, quitChan)

	var controlAPI *api.Server
	if settings.Realtime.Dashboard.Enabled {
		controlAPI = api.New(settings, scn, dataStore, stages.catalog)
		controlAPI.Start()
	}

	if settings.Realtime.Export.Enabled && settings.Realtime.Export.Retention.Enabled {
		startRetentionSweep(&wg, settings, quitChan)
	}

	if err := scn.Start(context.Background()); err != nil {
		close(quitChan)
		wg.Wait()
		return err
	}

	monitorCtrlC(quitChan)
	<-quitChan

	// An iteration in flight completes and delivers before Stop returns.
	scn.Stop()

	if controlAPI != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := controlAPI.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down control API: %v", err)
		}
		cancel()
	}

	wg.Wait()
	telemetry.Flush(2 * time.Second)
	return nil
}

// printHostSummary logs the platform the daemon came up on.
func printHostSummary() {
	info, err := host.Info()
	if err != nil {
		fmt.Printf("❌ Error retrieving host info: %v\n", err)
		return
	}
	fmt.Printf("System details: %s %s %s on %s\n",
		info.OS, info.Platform, info.PlatformVersion, info.KernelArch)
}

// connectMqtt brings up the spray-command link when MQTT is enabled.
// A broker that is down at startup is not fatal; the client keeps
// reconnecting with backoff in the background.
func connectMqtt(settings *conf.Settings, metrics *observability.Metrics) mqtt.Client {
	if !settings.Realtime.MQTT.Enabled {
		return nil
	}

	client, err := mqtt.NewClient(settings, metrics)
	if err != nil {
		log.Printf("⚠️  Error creating MQTT client: %v", err)
		return nil
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		log.Printf("⚠️  MQTT broker not reachable yet, reconnecting in background: %v", err)
	}
	return client
}

// buildNotifier brings up push alerts when notification is enabled.
func buildNotifier(settings *conf.Settings, metrics *observability.Metrics) *notification.Notifier {
	if !settings.Realtime.Notification.Enabled {
		return nil
	}

	notifier, err := notification.New(settings, metrics.Notification)
	if err != nil {
		log.Printf("⚠️  Error creating notifier, alerts disabled: %v", err)
		return nil
	}
	return notifier
}

// startTelemetryEndpoint exposes the Prometheus metrics endpoint if enabled.
func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan chan struct{}) {
	if !settings.Realtime.Telemetry.Enabled {
		return
	}

	endpoint, err := observability.NewEndpoint(settings, metrics)
	if err != nil {
		log.Printf("Error initializing telemetry endpoint: %v", err)
		return
	}
	endpoint.Start(wg, quitChan)
}

// startRetentionSweep periodically applies the age-based snapshot
// retention policy.
func startRetentionSweep(wg *sync.WaitGroup, settings *conf.Settings, quitChan chan struct{}) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()

		log.Println("Snapshot retention policy: age, max age", settings.Realtime.Export.Retention.MaxAge)

		for {
			select {
			case <-quitChan:
				return
			case <-ticker.C:
				if _, err := diskmanager.AgeBasedCleanup(quitChan, settings); err != nil {
					log.Printf("Error during age-based cleanup: %v", err)
				}
			}
		}
	}()
}

// monitorCtrlC listens for SIGINT/SIGTERM and triggers shutdown.
func monitorCtrlC(quitChan chan struct{}) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		log.Println("Received shutdown signal, stopping scanner")
		close(quitChan)
	}()
}

// closeDataStore attempts to close the database connection and logs the result.
func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	} else {
		log.Println("Successfully closed database")
	}
}
