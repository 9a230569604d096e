package processor

import (
	"strings"
	"sync"
	"time"

	"github.com/palayguard/palayguard-go/internal/conf"
)

// EventType identifies the kinds of per-pest actions the tracker throttles.
type EventType int

const (
	DatabaseSave EventType = iota
	LogToFile
	SendNotification
	SpraySend
	SaveSnapshot
)

// Suppression windows applied when the configuration leaves them unset.
const (
	DefaultSinkInterval         = 15 * time.Second
	DefaultNotificationInterval = 5 * time.Minute
	DefaultSprayCooldown        = 10 * time.Minute
)

// EventBehaviorFunc decides whether an event may run given the time of the
// previous one and the configured window.
type EventBehaviorFunc func(lastEventTime time.Time, timeout time.Duration) bool

// EventHandler holds the state and behavior for a single event type.
type EventHandler struct {
	LastEventTime map[string]time.Time // last event time per pest type
	Timeout       time.Duration        // minimum interval between events
	BehaviorFunc  EventBehaviorFunc
	Mutex         sync.Mutex
}

// NewEventHandler creates an EventHandler with the given window and behavior.
func NewEventHandler(timeout time.Duration, behaviorFunc EventBehaviorFunc) *EventHandler {
	return &EventHandler{
		LastEventTime: make(map[string]time.Time),
		Timeout:       timeout,
		BehaviorFunc:  behaviorFunc,
	}
}

// ShouldHandleEvent reports whether an event for the pest may run now,
// recording the attempt when it is allowed.
func (h *EventHandler) ShouldHandleEvent(pestType string) bool {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	lastTime, exists := h.LastEventTime[pestType]
	if !exists || h.BehaviorFunc(lastTime, h.Timeout) {
		h.LastEventTime[pestType] = time.Now()
		return true
	}
	return false
}

// ResetEvent clears the suppression window for one pest.
func (h *EventHandler) ResetEvent(pestType string) {
	h.Mutex.Lock()
	defer h.Mutex.Unlock()
	delete(h.LastEventTime, pestType)
}

// StandardEventBehavior allows an event once the window since the previous
// one has fully elapsed.
func StandardEventBehavior(lastEventTime time.Time, timeout time.Duration) bool {
	return time.Since(lastEventTime) >= timeout
}

// EventTracker throttles repeated actions per pest type across event types,
// so a pest sitting in front of the camera does not flood the database,
// the sprayer or the farmer's phone on every scan tick.
type EventTracker struct {
	Handlers map[EventType]*EventHandler
	Mutex    sync.Mutex
}

// NewEventTracker builds a tracker with one handler per event type. Sink
// writes share a short window; spray commands use the configured cooldown
// and notifications the configured alert interval.
func NewEventTracker(settings *conf.Settings) *EventTracker {
	sprayCooldown := DefaultSprayCooldown
	if settings != nil && settings.Realtime.Spray.Cooldown > 0 {
		sprayCooldown = time.Duration(settings.Realtime.Spray.Cooldown) * time.Second
	}
	notifyInterval := DefaultNotificationInterval
	if settings != nil && settings.Realtime.Notification.Interval > 0 {
		notifyInterval = time.Duration(settings.Realtime.Notification.Interval) * time.Second
	}

	return &EventTracker{
		Handlers: map[EventType]*EventHandler{
			DatabaseSave:     NewEventHandler(DefaultSinkInterval, StandardEventBehavior),
			LogToFile:        NewEventHandler(DefaultSinkInterval, StandardEventBehavior),
			SaveSnapshot:     NewEventHandler(DefaultSinkInterval, StandardEventBehavior),
			SendNotification: NewEventHandler(notifyInterval, StandardEventBehavior),
			SpraySend:        NewEventHandler(sprayCooldown, StandardEventBehavior),
		},
	}
}

// TrackEvent reports whether an action of the given type may run for the
// pest right now. Pest names are case folded so label casing drift does not
// open a second window.
func (t *EventTracker) TrackEvent(pestType string, eventType EventType) bool {
	if t == nil {
		return true
	}

	t.Mutex.Lock()
	handler, exists := t.Handlers[eventType]
	t.Mutex.Unlock()

	if !exists {
		return false
	}
	return handler.ShouldHandleEvent(strings.ToLower(pestType))
}

// ResetEvent clears the suppression window for one pest and event type.
func (t *EventTracker) ResetEvent(pestType string, eventType EventType) {
	if t == nil {
		return
	}

	t.Mutex.Lock()
	handler, exists := t.Handlers[eventType]
	t.Mutex.Unlock()

	if exists {
		handler.ResetEvent(strings.ToLower(pestType))
	}
}
