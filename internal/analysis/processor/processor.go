// Package processor reconciles classification verdicts into detection
// events and fans them out to observers and configured sinks.
package processor

import (
	"context"
	"sync"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/datastore"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/mqtt"
	"github.com/palayguard/palayguard-go/internal/notification"
)

// ObserverFunc receives every reconciled event, accepted or rejected.
// Observers run synchronously on the scan loop goroutine and should return
// quickly.
type ObserverFunc func(event *DetectionEvent)

type observerEntry struct {
	name string
	fn   ObserverFunc
}

// Processor owns the reconciliation engine, the observer registry and the
// detection sinks. One instance serves the whole scan loop.
type Processor struct {
	Settings     *conf.Settings
	Ds           datastore.Interface
	Engine       *ReconciliationEngine
	EventTracker *EventTracker
	MqttClient   mqtt.Client
	Notifier     *notification.Notifier

	actions []Action

	observerMu sync.RWMutex
	observers  []observerEntry
}

// New builds a processor with sinks assembled from the enabled integrations.
// Any of ds, mqttClient and notifier may be nil; the matching sink is then
// left out.
func New(settings *conf.Settings, ds datastore.Interface, cat *catalog.Catalog, mqttClient mqtt.Client, notifier *notification.Notifier) *Processor {
	p := &Processor{
		Settings:     settings,
		Ds:           ds,
		Engine:       NewReconciliationEngine(settings, cat),
		EventTracker: NewEventTracker(settings),
		MqttClient:   mqttClient,
		Notifier:     notifier,
	}
	p.actions = p.buildActions()
	return p
}

// buildActions assembles the enabled sinks in execution order. The snapshot
// action runs before the database action so the clip path is already on the
// event when the row is written.
func (p *Processor) buildActions() []Action {
	actions := []Action{
		&LogAction{Settings: p.Settings, EventTracker: p.EventTracker},
	}
	if p.Settings != nil && p.Settings.Realtime.Export.Enabled {
		actions = append(actions, &SnapshotAction{Settings: p.Settings, EventTracker: p.EventTracker})
	}
	if p.Ds != nil {
		actions = append(actions, &DatabaseAction{Settings: p.Settings, Ds: p.Ds, EventTracker: p.EventTracker})
	}
	if p.Settings != nil && p.Settings.Realtime.Spray.Enabled && p.MqttClient != nil {
		actions = append(actions, &SprayCommandAction{Settings: p.Settings, MqttClient: p.MqttClient, EventTracker: p.EventTracker})
	}
	if p.Notifier != nil {
		actions = append(actions, &NotificationAction{Settings: p.Settings, Notifier: p.Notifier, EventTracker: p.EventTracker})
	}
	return actions
}

// AddObserver registers fn under the given name. Registering an existing
// name replaces the function in place, keeping its dispatch position.
func (p *Processor) AddObserver(name string, fn ObserverFunc) error {
	if name == "" {
		return errors.Newf("observer name must not be empty").
			Component("processor").
			Category(errors.CategoryValidation).
			Build()
	}
	if fn == nil {
		return errors.Newf("observer %s has a nil function", name).
			Component("processor").
			Category(errors.CategoryValidation).
			Context("observer", name).
			Build()
	}

	p.observerMu.Lock()
	defer p.observerMu.Unlock()

	for i := range p.observers {
		if p.observers[i].name == name {
			p.observers[i].fn = fn
			return nil
		}
	}
	p.observers = append(p.observers, observerEntry{name: name, fn: fn})
	return nil
}

// RemoveObserver unregisters the named observer. It reports whether an
// observer with that name existed.
func (p *Processor) RemoveObserver(name string) bool {
	p.observerMu.Lock()
	defer p.observerMu.Unlock()

	for i := range p.observers {
		if p.observers[i].name == name {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return true
		}
	}
	return false
}

// DispatchEvent delivers the event to every registered observer in
// registration order, then runs the sinks. Observer panics are contained so
// one misbehaving listener cannot kill the scan loop; sink errors are
// logged and do not stop later sinks.
func (p *Processor) DispatchEvent(ctx context.Context, event *DetectionEvent) {
	if event == nil {
		return
	}

	p.observerMu.RLock()
	observers := make([]observerEntry, len(p.observers))
	copy(observers, p.observers)
	p.observerMu.RUnlock()

	for i := range observers {
		p.notifyObserver(&observers[i], event)
	}

	for _, action := range p.actions {
		if err := action.Execute(ctx, event); err != nil {
			logger.Error("detection sink failed",
				"sink", action.GetDescription(),
				"detection_id", event.CorrelationID,
				"pest_type", event.PestType,
				"error", err)
		}
	}
}

func (p *Processor) notifyObserver(entry *observerEntry, event *DetectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("observer %s panicked: %v", entry.name, r).
				Component("processor").
				Category(errors.CategoryProcessing).
				Context("observer", entry.name).
				Build()
			logger.Error("observer panicked",
				"observer", entry.name,
				"detection_id", event.CorrelationID,
				"error", err)
		}
	}()
	entry.fn(event)
}
