package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/notification"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

type publishedMessage struct {
	topic   string
	payload string
}

type fakeMqttClient struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []publishedMessage
}

func (c *fakeMqttClient) Connect(_ context.Context) error { return nil }

func (c *fakeMqttClient) Publish(_ context.Context, topic, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (c *fakeMqttClient) IsConnected() bool { return c.connected }

func (c *fakeMqttClient) Disconnect() {}

type savedDetection struct {
	detection datastore.Detection
	scores    []datastore.Scores
}

type captureStore struct {
	mu      sync.Mutex
	saveErr error
	saved   []savedDetection
}

func (s *captureStore) Open() error  { return nil }
func (s *captureStore) Close() error { return nil }

func (s *captureStore) Save(detection *datastore.Detection, scores []datastore.Scores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, savedDetection{detection: *detection, scores: scores})
	return nil
}

func (s *captureStore) Get(_ string) (datastore.Detection, error) { return datastore.Detection{}, nil }
func (s *captureStore) Delete(_ string) error                     { return nil }
func (s *captureStore) GetLastDetections(_ int) ([]datastore.Detection, error) {
	return nil, nil
}
func (s *captureStore) SpeciesSummary() ([]datastore.SpeciesSummaryRow, error) { return nil, nil }
func (s *captureStore) SearchDetections(_ *datastore.SearchFilter) ([]datastore.Detection, error) {
	return nil, nil
}

type fakeAlertSender struct {
	mu     sync.Mutex
	err    error
	alerts []notification.Alert
}

func (f *fakeAlertSender) NotifyDetection(_ context.Context, alert *notification.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, *alert)
	return nil
}

func spraySettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Main.Name = "PaddyStation"
	settings.Detection.NoPestLabel = "no pest"
	settings.Realtime.Spray.Enabled = true
	settings.Realtime.Spray.Topic = "palayguard/spray/command"
	settings.Realtime.Spray.MinConfidence = 90
	settings.Realtime.Spray.Cooldown = 600
	settings.Realtime.Spray.Duration = 5
	settings.Realtime.Spray.DangerLevels = []string{"high", "critical"}
	return settings
}

func detectedEvent() *DetectionEvent {
	return &DetectionEvent{
		CorrelationID:  "det-1",
		Detected:       true,
		PestType:       "Rice Black Bug",
		ScientificName: "Scotinophara coarctata",
		Confidence:     95,
		Margin:         93,
		Regions:        []localizer.Region{{X: 4, Y: 4, Width: 64, Height: 64, Score: 0.8}},
		Rankings: []paddynet.LabelScore{
			{Label: "Rice Black Bug", Score: 0.95},
			{Label: "Golden Apple Snail", Score: 0.02},
		},
		Species: &catalog.Species{
			Label:          "Rice Black Bug",
			ScientificName: "Scotinophara coarctata",
			DangerLevel:    catalog.DangerHigh,
		},
		Recommendations: []string{"Use light traps during mass flights to capture adult bugs."},
		Source:          "camera-1",
		Timestamp:       time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func pngFrame(t *testing.T) *frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{R: 220, G: 40, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	frm, err := frame.NewFrame(buf.Bytes(), "camera-1")
	require.NoError(t, err)
	return frm
}

func TestSprayCommandPublishes(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	require.Len(t, client.published, 1)
	assert.Equal(t, "palayguard/spray/command", client.published[0].topic)

	var cmd SprayCommand
	require.NoError(t, json.Unmarshal([]byte(client.published[0].payload), &cmd))
	assert.Equal(t, "PaddyStation", cmd.Node)
	assert.Equal(t, "spray", cmd.Command)
	assert.Equal(t, "Rice Black Bug", cmd.PestType)
	assert.Equal(t, "Scotinophara coarctata", cmd.ScientificName)
	assert.Equal(t, 95, cmd.Confidence)
	assert.Equal(t, catalog.DangerHigh, cmd.DangerLevel)
	assert.Equal(t, 5, cmd.DurationSeconds)
	assert.Equal(t, "det-1", cmd.CorrelationID)
	assert.Equal(t, "2026-03-14T09:26:53Z", cmd.Timestamp)
}

func TestSprayCommandConfidenceFloor(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}
	event := detectedEvent()
	event.Confidence = 85

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, client.published)
}

func TestSprayCommandDangerLevelGate(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}

	mediumDanger := detectedEvent()
	mediumDanger.Species = &catalog.Species{Label: "Rice Bug", DangerLevel: catalog.DangerMedium}
	require.NoError(t, action.Execute(t.Context(), mediumDanger))

	unknownSpecies := detectedEvent()
	unknownSpecies.Species = nil
	require.NoError(t, action.Execute(t.Context(), unknownSpecies))

	assert.Empty(t, client.published, "only cataloged high severity pests may trigger the sprayer")
}

func TestSprayCommandDefaultDangerLevels(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Spray.DangerLevels = nil
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     settings,
		MqttClient:   client,
		EventTracker: NewEventTracker(settings),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	assert.Len(t, client.published, 1)
}

func TestSprayCommandCooldown(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	assert.Len(t, client.published, 1, "repeat detection inside the cooldown must not spray again")
}

func TestSprayCommandConsumesOnlySprayThrottleSlot(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	tracker := NewEventTracker(spraySettings())
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: tracker,
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	require.Len(t, client.published, 1)

	var cmd SprayCommand
	require.NoError(t, json.Unmarshal([]byte(client.published[0].payload), &cmd))
	assert.Equal(t, "spray", cmd.Command)

	// The publish used up the spray slot for this pest; the other event
	// types remain untouched.
	assert.False(t, tracker.TrackEvent("Rice Black Bug", SpraySend))
	assert.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
	assert.True(t, tracker.TrackEvent("Rice Black Bug", SendNotification))
}

func TestSprayCommandNotConnected(t *testing.T) {
	client := &fakeMqttClient{connected: false}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryMQTTConnection))
	assert.Empty(t, client.published)
}

func TestSprayCommandEmptyTopic(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Spray.Topic = ""
	action := &SprayCommandAction{
		Settings:     settings,
		MqttClient:   &fakeMqttClient{connected: true},
		EventTracker: NewEventTracker(settings),
	}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
}

func TestSprayCommandSkipsRejectedEvent(t *testing.T) {
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}
	event := detectedEvent()
	event.Detected = false

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, client.published)
}

func TestSprayCommandDisabled(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Spray.Enabled = false
	client := &fakeMqttClient{connected: true}
	action := &SprayCommandAction{
		Settings:     settings,
		MqttClient:   client,
		EventTracker: NewEventTracker(settings),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	assert.Empty(t, client.published)
}

func TestSprayCommandPublishError(t *testing.T) {
	client := &fakeMqttClient{connected: true, publishErr: errors.NewStd("broker gone")}
	action := &SprayCommandAction{
		Settings:     spraySettings(),
		MqttClient:   client,
		EventTracker: NewEventTracker(spraySettings()),
	}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestDatabaseActionSavesDetection(t *testing.T) {
	store := &captureStore{}
	action := &DatabaseAction{
		Settings:     spraySettings(),
		Ds:           store,
		EventTracker: NewEventTracker(nil),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	require.Len(t, store.saved, 1)
	saved := store.saved[0].detection
	assert.Equal(t, "PaddyStation", saved.SourceNode)
	assert.Equal(t, "2026-03-14", saved.Date)
	assert.Equal(t, "09:26:53", saved.Time)
	assert.Equal(t, "camera-1", saved.Source)
	assert.Equal(t, "Rice Black Bug", saved.PestType)
	assert.Equal(t, "Scotinophara coarctata", saved.ScientificName)
	assert.Equal(t, 95, saved.Confidence)
	assert.Equal(t, 93, saved.Margin)
	assert.True(t, saved.Detected)
	assert.Equal(t, catalog.DangerHigh, saved.DangerLevel)
	assert.Equal(t, 1, saved.RegionCount)

	require.Len(t, store.saved[0].scores, 2)
	assert.Equal(t, "Rice Black Bug", store.saved[0].scores[0].Label)
	assert.InDelta(t, 0.95, store.saved[0].scores[0].Score, 1e-6)
}

func TestDatabaseActionPersistsNearMisses(t *testing.T) {
	store := &captureStore{}
	action := &DatabaseAction{
		Settings:     spraySettings(),
		Ds:           store,
		EventTracker: NewEventTracker(nil),
	}
	event := detectedEvent()
	event.Detected = false
	event.Confidence = 72
	event.Margin = 4

	require.NoError(t, action.Execute(t.Context(), event))

	require.Len(t, store.saved, 1)
	assert.False(t, store.saved[0].detection.Detected)
	assert.Equal(t, 72, store.saved[0].detection.Confidence)
}

func TestDatabaseActionSkipsEmptySceneEvents(t *testing.T) {
	store := &captureStore{}
	action := &DatabaseAction{
		Settings:     spraySettings(),
		Ds:           store,
		EventTracker: NewEventTracker(nil),
	}
	event := detectedEvent()
	event.Detected = false
	event.PestType = "No Pest Detected"

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, store.saved, "quiet frames must not fill the database")
}

func TestDatabaseActionThrottlesRepeats(t *testing.T) {
	store := &captureStore{}
	action := &DatabaseAction{
		Settings:     spraySettings(),
		Ds:           store,
		EventTracker: NewEventTracker(nil),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	assert.Len(t, store.saved, 1)
}

func TestDatabaseActionSaveError(t *testing.T) {
	store := &captureStore{saveErr: errors.NewStd("disk full")}
	action := &DatabaseAction{
		Settings:     spraySettings(),
		Ds:           store,
		EventTracker: NewEventTracker(nil),
	}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDatabaseActionNilStore(t *testing.T) {
	action := &DatabaseAction{Settings: spraySettings(), EventTracker: NewEventTracker(nil)}
	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
}

func TestNotificationActionSendsAlert(t *testing.T) {
	sender := &fakeAlertSender{}
	action := &NotificationAction{
		Settings:     spraySettings(),
		Notifier:     sender,
		EventTracker: NewEventTracker(nil),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	require.Len(t, sender.alerts, 1)
	alert := sender.alerts[0]
	assert.Equal(t, "Rice Black Bug", alert.PestType)
	assert.Equal(t, "Scotinophara coarctata", alert.ScientificName)
	assert.Equal(t, catalog.DangerHigh, alert.DangerLevel)
	assert.Equal(t, 95, alert.Confidence)
	assert.Equal(t, "camera-1", alert.Source)
	assert.NotEmpty(t, alert.Recommendations)
}

func TestNotificationActionSkipsRejected(t *testing.T) {
	sender := &fakeAlertSender{}
	action := &NotificationAction{
		Settings:     spraySettings(),
		Notifier:     sender,
		EventTracker: NewEventTracker(nil),
	}
	event := detectedEvent()
	event.Detected = false

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, sender.alerts)
}

func TestNotificationActionThrottles(t *testing.T) {
	sender := &fakeAlertSender{}
	action := &NotificationAction{
		Settings:     spraySettings(),
		Notifier:     sender,
		EventTracker: NewEventTracker(nil),
	}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))
	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	assert.Len(t, sender.alerts, 1)
}

func TestNotificationActionErrorPropagates(t *testing.T) {
	sender := &fakeAlertSender{err: errors.NewStd("push service down")}
	action := &NotificationAction{
		Settings:     spraySettings(),
		Notifier:     sender,
		EventTracker: NewEventTracker(nil),
	}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push service down")
}

func TestSnapshotActionWritesClip(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Export.Enabled = true
	settings.Realtime.Export.Path = t.TempDir()
	action := &SnapshotAction{Settings: settings, EventTracker: NewEventTracker(nil)}

	event := detectedEvent()
	event.Frame = pngFrame(t)

	require.NoError(t, action.Execute(t.Context(), event))

	require.NotEmpty(t, event.ClipName)
	assert.True(t, strings.HasSuffix(event.ClipName, ".png"))
	assert.Contains(t, event.ClipName, "rice_black_bug")
	_, err := os.Stat(event.ClipName)
	require.NoError(t, err)
}

func TestSnapshotActionDisabled(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Export.Enabled = false
	action := &SnapshotAction{Settings: settings, EventTracker: NewEventTracker(nil)}

	event := detectedEvent()
	event.Frame = pngFrame(t)

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, event.ClipName)
}

func TestSnapshotActionMissingFrame(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Export.Enabled = true
	settings.Realtime.Export.Path = t.TempDir()
	action := &SnapshotAction{Settings: settings, EventTracker: NewEventTracker(nil)}

	err := action.Execute(t.Context(), detectedEvent())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSnapshotActionSkipsRejected(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Export.Enabled = true
	settings.Realtime.Export.Path = t.TempDir()
	action := &SnapshotAction{Settings: settings, EventTracker: NewEventTracker(nil)}

	event := detectedEvent()
	event.Detected = false
	event.Frame = pngFrame(t)

	require.NoError(t, action.Execute(t.Context(), event))
	assert.Empty(t, event.ClipName)
}

func TestSnapshotActionThrottles(t *testing.T) {
	settings := spraySettings()
	settings.Realtime.Export.Enabled = true
	settings.Realtime.Export.Path = t.TempDir()
	action := &SnapshotAction{Settings: settings, EventTracker: NewEventTracker(nil)}

	first := detectedEvent()
	first.Frame = pngFrame(t)
	require.NoError(t, action.Execute(t.Context(), first))

	second := detectedEvent()
	second.Frame = pngFrame(t)
	require.NoError(t, action.Execute(t.Context(), second))

	assert.NotEmpty(t, first.ClipName)
	assert.Empty(t, second.ClipName, "snapshot window must suppress repeat clips")
}

func TestLogActionHandlesBothOutcomes(t *testing.T) {
	action := &LogAction{Settings: spraySettings(), EventTracker: NewEventTracker(nil)}

	require.NoError(t, action.Execute(t.Context(), detectedEvent()))

	rejected := detectedEvent()
	rejected.Detected = false
	rejected.PestType = "Golden Apple Snail"
	require.NoError(t, action.Execute(t.Context(), rejected))
}
