package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palayguard/palayguard-go/internal/conf"
)

func TestTrackEventFirstAllowed(t *testing.T) {
	tracker := NewEventTracker(nil)
	assert.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
}

func TestTrackEventSuppressedWithinWindow(t *testing.T) {
	tracker := NewEventTracker(nil)

	require.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
	assert.False(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
}

func TestTrackEventAllowsAfterWindow(t *testing.T) {
	tracker := NewEventTracker(nil)
	require.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))

	handler := tracker.Handlers[DatabaseSave]
	handler.Mutex.Lock()
	handler.LastEventTime["rice black bug"] = time.Now().Add(-DefaultSinkInterval - time.Second)
	handler.Mutex.Unlock()

	assert.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
}

func TestTrackEventPerEventTypeWindows(t *testing.T) {
	tracker := NewEventTracker(nil)

	require.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
	assert.True(t, tracker.TrackEvent("Rice Black Bug", SendNotification),
		"event types keep independent windows")
	assert.True(t, tracker.TrackEvent("Rice Black Bug", SpraySend))
}

func TestTrackEventPerPestWindows(t *testing.T) {
	tracker := NewEventTracker(nil)

	require.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
	assert.True(t, tracker.TrackEvent("Golden Apple Snail", DatabaseSave),
		"pests keep independent windows")
}

func TestTrackEventFoldsCase(t *testing.T) {
	tracker := NewEventTracker(nil)

	require.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave))
	assert.False(t, tracker.TrackEvent("rice black bug", DatabaseSave))
	assert.False(t, tracker.TrackEvent("RICE BLACK BUG", DatabaseSave))
}

func TestTrackEventUnknownType(t *testing.T) {
	tracker := NewEventTracker(nil)
	assert.False(t, tracker.TrackEvent("Rice Black Bug", EventType(99)))
}

func TestTrackEventNilTracker(t *testing.T) {
	var tracker *EventTracker
	assert.True(t, tracker.TrackEvent("Rice Black Bug", DatabaseSave),
		"a processor without a tracker never throttles")
}

func TestResetEventReopensWindow(t *testing.T) {
	tracker := NewEventTracker(nil)

	require.True(t, tracker.TrackEvent("Rice Black Bug", SpraySend))
	require.False(t, tracker.TrackEvent("Rice Black Bug", SpraySend))

	tracker.ResetEvent("Rice Black Bug", SpraySend)

	assert.True(t, tracker.TrackEvent("Rice Black Bug", SpraySend))
}

func TestNewEventTrackerDefaultWindows(t *testing.T) {
	tracker := NewEventTracker(nil)

	assert.Equal(t, DefaultSinkInterval, tracker.Handlers[DatabaseSave].Timeout)
	assert.Equal(t, DefaultSinkInterval, tracker.Handlers[LogToFile].Timeout)
	assert.Equal(t, DefaultSinkInterval, tracker.Handlers[SaveSnapshot].Timeout)
	assert.Equal(t, DefaultNotificationInterval, tracker.Handlers[SendNotification].Timeout)
	assert.Equal(t, DefaultSprayCooldown, tracker.Handlers[SpraySend].Timeout)
}

func TestNewEventTrackerConfiguredWindows(t *testing.T) {
	settings := &conf.Settings{}
	settings.Realtime.Spray.Cooldown = 120
	settings.Realtime.Notification.Interval = 45

	tracker := NewEventTracker(settings)

	assert.Equal(t, 2*time.Minute, tracker.Handlers[SpraySend].Timeout)
	assert.Equal(t, 45*time.Second, tracker.Handlers[SendNotification].Timeout)
}

func TestStandardEventBehavior(t *testing.T) {
	assert.True(t, StandardEventBehavior(time.Now().Add(-16*time.Second), 15*time.Second))
	assert.False(t, StandardEventBehavior(time.Now(), 15*time.Second))
}
