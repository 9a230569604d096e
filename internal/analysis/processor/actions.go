package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/export"
	"github.com/palayguard/palayguard-go/internal/mqtt"
	"github.com/palayguard/palayguard-go/internal/notification"
)

// MQTTPublishTimeout bounds a single spray command publish.
const MQTTPublishTimeout = 10 * time.Second

// Action is one detection sink. Implementations are reused across events
// and must be safe for concurrent calls.
type Action interface {
	Execute(ctx context.Context, event *DetectionEvent) error
	GetDescription() string
}

// AlertSender is satisfied by notification.Notifier.
type AlertSender interface {
	NotifyDetection(ctx context.Context, alert *notification.Alert) error
}

type LogAction struct {
	Settings     *conf.Settings
	EventTracker *EventTracker
	Description  string
	mu           sync.Mutex
}

type DatabaseAction struct {
	Settings     *conf.Settings
	Ds           datastore.Interface
	EventTracker *EventTracker
	Description  string
	mu           sync.Mutex
}

type SprayCommandAction struct {
	Settings     *conf.Settings
	MqttClient   mqtt.Client
	EventTracker *EventTracker
	Description  string
	mu           sync.Mutex
}

type NotificationAction struct {
	Settings     *conf.Settings
	Notifier     AlertSender
	EventTracker *EventTracker
	Description  string
	mu           sync.Mutex
}

type SnapshotAction struct {
	Settings     *conf.Settings
	EventTracker *EventTracker
	Description  string
	mu           sync.Mutex
}

// SprayCommand is the JSON payload published to the spray actuator topic.
type SprayCommand struct {
	Node            string `json:"node"`
	Command         string `json:"command"`
	PestType        string `json:"pest_type"`
	ScientificName  string `json:"scientific_name,omitempty"`
	Confidence      int    `json:"confidence"`
	DangerLevel     string `json:"danger_level"`
	DurationSeconds int    `json:"duration_seconds"`
	CorrelationID   string `json:"correlation_id"`
	Timestamp       string `json:"timestamp"`
}

// GetDescription returns a human-readable description of the LogAction
func (a *LogAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Log pest detection to file"
}

// GetDescription returns a human-readable description of the DatabaseAction
func (a *DatabaseAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Save pest detection to database"
}

// GetDescription returns a human-readable description of the SprayCommandAction
func (a *SprayCommandAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Publish spray command to MQTT"
}

// GetDescription returns a human-readable description of the NotificationAction
func (a *NotificationAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Send pest alert notification"
}

// GetDescription returns a human-readable description of the SnapshotAction
func (a *SnapshotAction) GetDescription() string {
	if a.Description != "" {
		return a.Description
	}
	return "Save detection snapshot to file"
}

// Execute writes one detection line to the processor log and the console.
func (a *LogAction) Execute(_ context.Context, event *DetectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == nil {
		return nil
	}
	if !a.EventTracker.TrackEvent(event.PestType, LogToFile) {
		return nil
	}

	if event.Detected {
		logger.Info("pest detected",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"scientific_name", event.ScientificName,
			"confidence", event.Confidence,
			"margin", event.Margin,
			"danger_level", event.DangerLevel(),
			"regions", len(event.Regions),
			"source", event.Source)
		fmt.Printf("%s %s %d%%\n", event.Timestamp.Format("15:04:05"), event.PestType, event.Confidence)
	} else {
		logger.Info("verdict below thresholds",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"confidence", event.Confidence,
			"margin", event.Margin,
			"source", event.Source)
	}
	return nil
}

// Execute persists the event as a detection row plus its ranked score rows.
// Empty-scene verdicts are skipped; near misses are saved with Detected
// false so operators can review them.
func (a *DatabaseAction) Execute(_ context.Context, event *DetectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == nil || a.Ds == nil {
		return nil
	}
	if containsNoPest(a.Settings, event.PestType) {
		return nil
	}
	if !a.EventTracker.TrackEvent(event.PestType, DatabaseSave) {
		return nil
	}

	detection := buildDetectionRecord(a.Settings, event)
	scores := make([]datastore.Scores, 0, len(event.Rankings))
	for _, r := range event.Rankings {
		scores = append(scores, datastore.Scores{Label: r.Label, Score: r.Score})
	}

	if err := a.Ds.Save(&detection, scores); err != nil {
		logger.Error("failed to save detection",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"confidence", event.Confidence,
			"error", err)
		return err
	}

	logger.Debug("detection saved",
		"detection_id", event.CorrelationID,
		"pest_type", event.PestType,
		"detected", event.Detected,
		"score_rows", len(scores))
	return nil
}

// Execute publishes a spray command when the detection clears the actuation
// gates. The cooldown window is consumed before the publish attempt, so a
// flapping broker does not trigger a burst of commands once it recovers.
func (a *SprayCommandAction) Execute(ctx context.Context, event *DetectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == nil || !event.Detected {
		return nil
	}
	settings := a.Settings
	if settings == nil || !settings.Realtime.Spray.Enabled {
		return nil
	}
	if event.Confidence < settings.Realtime.Spray.MinConfidence {
		logger.Debug("spray command withheld, confidence below floor",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"confidence", event.Confidence,
			"floor", settings.Realtime.Spray.MinConfidence)
		return nil
	}
	if !sprayDangerQualifies(settings, event) {
		logger.Debug("spray command withheld, danger level does not qualify",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"danger_level", event.DangerLevel())
		return nil
	}
	if !a.EventTracker.TrackEvent(event.PestType, SpraySend) {
		return nil
	}

	if a.MqttClient == nil || !a.MqttClient.IsConnected() {
		logger.Error("spray command skipped, MQTT client not connected",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType)
		return errors.Newf("spray command for %s skipped, MQTT client not connected", event.PestType).
			Component("processor").
			Category(errors.CategoryMQTTConnection).
			Context("pest_type", event.PestType).
			Build()
	}

	topic := settings.Realtime.Spray.Topic
	if topic == "" {
		return errors.Newf("spray topic is not configured").
			Component("processor").
			Category(errors.CategoryConfiguration).
			Build()
	}

	command := SprayCommand{
		Node:            settings.Main.Name,
		Command:         "spray",
		PestType:        event.PestType,
		ScientificName:  event.ScientificName,
		Confidence:      event.Confidence,
		DangerLevel:     event.DangerLevel(),
		DurationSeconds: sprayDuration(settings),
		CorrelationID:   event.CorrelationID,
		Timestamp:       event.Timestamp.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(command)
	if err != nil {
		return errors.New(err).
			Component("processor").
			Category(errors.CategoryValidation).
			Context("pest_type", event.PestType).
			Build()
	}

	pubCtx, cancel := context.WithTimeout(ctx, MQTTPublishTimeout)
	defer cancel()

	if err := a.MqttClient.Publish(pubCtx, topic, string(payload)); err != nil {
		logger.Error("failed to publish spray command",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"topic", topic,
			"error", err)
		return err
	}

	logger.Info("spray command published",
		"detection_id", event.CorrelationID,
		"pest_type", event.PestType,
		"danger_level", event.DangerLevel(),
		"topic", topic,
		"duration_seconds", command.DurationSeconds)
	return nil
}

// Execute pushes a farmer alert for the detection.
func (a *NotificationAction) Execute(ctx context.Context, event *DetectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == nil || !event.Detected || a.Notifier == nil {
		return nil
	}
	if !a.EventTracker.TrackEvent(event.PestType, SendNotification) {
		return nil
	}

	alert := &notification.Alert{
		PestType:        event.PestType,
		ScientificName:  event.ScientificName,
		DangerLevel:     event.DangerLevel(),
		Confidence:      event.Confidence,
		Source:          event.Source,
		Recommendations: event.Recommendations,
		Timestamp:       event.Timestamp,
	}
	if err := a.Notifier.NotifyDetection(ctx, alert); err != nil {
		logger.Error("failed to send detection alert",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"error", err)
		return err
	}
	return nil
}

// Execute saves the detection frame as a snapshot and records the clip path
// on the event. It runs before the database action so the path lands in the
// detection row.
func (a *SnapshotAction) Execute(_ context.Context, event *DetectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == nil || !event.Detected {
		return nil
	}
	if a.Settings == nil || !a.Settings.Realtime.Export.Enabled {
		return nil
	}
	if event.Frame == nil {
		return errors.Newf("snapshot export requested without a frame").
			Component("processor").
			Category(errors.CategoryValidation).
			Context("detection_id", event.CorrelationID).
			Build()
	}
	if !a.EventTracker.TrackEvent(event.PestType, SaveSnapshot) {
		return nil
	}

	clipName, err := export.SaveSnapshot(a.Settings, event.Frame, event.PestType, event.Confidence)
	if err != nil {
		logger.Error("failed to save detection snapshot",
			"detection_id", event.CorrelationID,
			"pest_type", event.PestType,
			"error", err)
		return err
	}
	event.ClipName = clipName
	return nil
}

// sprayDangerQualifies checks the species danger level against the
// configured actuation levels. Unknown species never qualify; the sprayer
// only runs for cataloged threats.
func sprayDangerQualifies(settings *conf.Settings, event *DetectionEvent) bool {
	danger := event.DangerLevel()
	if danger == "" {
		return false
	}
	levels := settings.Realtime.Spray.DangerLevels
	if len(levels) == 0 {
		levels = []string{catalog.DangerHigh, catalog.DangerCritical}
	}
	for _, level := range levels {
		if strings.EqualFold(level, danger) {
			return true
		}
	}
	return false
}

func sprayDuration(settings *conf.Settings) int {
	if settings != nil && settings.Realtime.Spray.Duration > 0 {
		return settings.Realtime.Spray.Duration
	}
	return 5
}
