// Package scanner drives the continuous detection loop: a ticker pulls
// frames from the configured source and runs them through the localize,
// classify and reconcile stages. At most one iteration is ever in
// flight; ticks that fire while an iteration is still running are
// counted and dropped. A failed stage skips the tick, never the loop.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/imagery"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// DefaultInterval is the tick cadence when realtime.scan.interval is
// unset. The valid configuration range is 700-3000 ms.
const DefaultInterval = 1500 * time.Millisecond

// Classifier is the fine-grained classification stage as the scan loop
// sees it. Satisfied by *paddynet.PaddyNet.
type Classifier interface {
	Classify(ctx context.Context, tensor *imagery.Tensor) (*paddynet.ClassificationVerdict, error)
}

// Dispatcher receives every reconciled event. Satisfied by
// *processor.Processor.
type Dispatcher interface {
	DispatchEvent(ctx context.Context, event *processor.DetectionEvent)
}

// Status is a snapshot of the scan loop state.
type Status struct {
	Running    bool                      `json:"running"`
	InFlight   bool                      `json:"in_flight"`
	Iterations uint64                    `json:"iterations"`
	Skipped    uint64                    `json:"skipped_ticks"`
	Failures   uint64                    `json:"failures"`
	LastEvent  *processor.DetectionEvent `json:"last_event,omitempty"`
	LastError  string                    `json:"last_error,omitempty"`
}

// Scanner owns one scan session: the ticker goroutine, the in-flight
// guard and the iteration counters. Start, Stop, Status and RunOnce are
// safe for concurrent use.
type Scanner struct {
	settings   *conf.Settings
	source     frame.Source
	localizer  localizer.Localizer
	classifier Classifier
	engine     *processor.ReconciliationEngine
	dispatcher Dispatcher

	// mu guards the session transitions, inFlight guards iterations.
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	inFlight atomic.Bool

	iterations atomic.Uint64
	skipped    atomic.Uint64
	failures   atomic.Uint64

	// tickOverride bypasses the configured cadence in tests.
	tickOverride time.Duration

	lastMu    sync.RWMutex
	lastEvent *processor.DetectionEvent
	lastError string
}

// New assembles a scanner over the given pipeline stages. The localizer
// may be nil, which behaves like the whole-frame passthrough strategy.
func New(settings *conf.Settings, source frame.Source, loc localizer.Localizer, classifier Classifier, engine *processor.ReconciliationEngine, dispatcher Dispatcher) *Scanner {
	return &Scanner{
		settings:   settings,
		source:     source,
		localizer:  loc,
		classifier: classifier,
		engine:     engine,
		dispatcher: dispatcher,
	}
}

// Start begins continuous scanning. Starting a running scanner is a
// no-op returning nil, so a double start never creates a second ticker.
// The passed context scopes the session the same way Stop does: when it
// is cancelled no further iterations start, but an iteration already in
// flight completes and its events are delivered.
func (s *Scanner) Start(ctx context.Context) error {
	if s.source == nil {
		return errors.Newf("scanner has no frame source").
			Component("scanner").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Debug("Start called on a running scanner, ignoring")
		return nil
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	interval := s.tickInterval()
	logger.Info("Continuous scanning started",
		"source", s.source.Name(),
		"interval_ms", interval.Milliseconds())

	go s.run(sessionCtx, s.done, interval)
	return nil
}

// Stop ends continuous scanning. Stopping an idle scanner is a no-op.
// Stop cancels future ticks and then waits: an iteration in flight runs
// to completion and its events are delivered exactly once before Stop
// returns.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	logger.Info("Continuous scanning stopped",
		"iterations", s.iterations.Load(),
		"skipped_ticks", s.skipped.Load(),
		"failures", s.failures.Load())
}

// Running reports whether a scan session is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the loop state and counters.
func (s *Scanner) Status() Status {
	s.lastMu.RLock()
	lastEvent, lastError := s.lastEvent, s.lastError
	s.lastMu.RUnlock()

	return Status{
		Running:    s.Running(),
		InFlight:   s.inFlight.Load(),
		Iterations: s.iterations.Load(),
		Skipped:    s.skipped.Load(),
		Failures:   s.failures.Load(),
		LastEvent:  lastEvent,
		LastError:  lastError,
	}
}

// run is the session goroutine: it consumes the ticker and launches one
// iteration per tick, unless the previous iteration still holds the
// in-flight slot. On cancellation it waits for the iteration in flight
// so its dispatch is never truncated.
func (s *Scanner) run(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var iterWG sync.WaitGroup
	defer iterWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				s.skipped.Add(1)
				if m := getMetrics(); m != nil {
					m.IncrementSkippedTicks()
				}
				logger.Debug("Tick skipped, previous iteration still in flight",
					"skipped_ticks", s.skipped.Load())
				continue
			}
			iterWG.Add(1)
			go func() {
				defer iterWG.Done()
				defer s.inFlight.Store(false)
				s.scanTick()
			}()
		}
	}
}

// scanTick runs one continuous-mode iteration and applies the failure
// policy: a stage error is logged and counted and the tick is skipped,
// the loop stays alive.
func (s *Scanner) scanTick() {
	start := time.Now()
	m := getMetrics()
	if m != nil {
		m.SetInFlight(true)
		defer m.SetInFlight(false)
	}

	// Stages carry their own bounded timeouts; stopping the session
	// must not preempt work already in flight, so the iteration does
	// not descend from the session context.
	event, err := s.iterate(context.Background())

	elapsed := time.Since(start)
	s.iterations.Add(1)
	if m != nil {
		m.IncrementIterations()
		m.RecordIterationDuration(elapsed.Seconds())
	}

	if err != nil {
		s.failures.Add(1)
		s.setLastError(err)
		if m != nil {
			m.IncrementStageFailure(failedStage(err))
		}
		logger.Warn("Scan iteration failed, skipping tick",
			"stage", failedStage(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		return
	}

	s.setLastEvent(event)
	if s.settings != nil && s.settings.Realtime.ProcessingTime {
		logger.Info("Scan iteration complete",
			"detected", event != nil && event.Detected,
			"duration_ms", elapsed.Milliseconds())
	}
}

// RunOnce executes a single iteration over the scanner's own source,
// outside the ticker. Unlike continuous ticks, stage errors propagate
// to the caller. The in-flight guard is shared with the loop, so a
// single-shot analysis never overlaps a continuous iteration.
func (s *Scanner) RunOnce(ctx context.Context) (*processor.DetectionEvent, error) {
	return s.RunOnceFrom(ctx, s.source)
}

// RunOnceFrom is RunOnce over an explicit source, used by the one-shot
// image analysis path.
func (s *Scanner) RunOnceFrom(ctx context.Context, source frame.Source) (*processor.DetectionEvent, error) {
	if source == nil {
		return nil, errors.Newf("no frame source supplied").
			Component("scanner").
			Category(errors.CategoryValidation).
			Build()
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, errors.Newf("a scan iteration is already in flight").
			Component("scanner").
			Category(errors.CategoryState).
			Build()
	}
	defer s.inFlight.Store(false)

	event, err := s.iterateFrom(ctx, source)
	if err != nil {
		return nil, err
	}
	s.setLastEvent(event)
	return event, nil
}

// tickInterval resolves the configured cadence, falling back to the
// default outside the validated 700-3000 ms range.
func (s *Scanner) tickInterval() time.Duration {
	if s.tickOverride > 0 {
		return s.tickOverride
	}
	if s.settings != nil {
		if ms := s.settings.Realtime.Scan.Interval; ms >= 700 && ms <= 3000 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return DefaultInterval
}

func (s *Scanner) setLastEvent(event *processor.DetectionEvent) {
	if event == nil {
		return
	}
	// The frame backing the event is closed when the iteration ends;
	// the status snapshot keeps everything but the frame handle.
	snapshot := *event
	snapshot.Frame = nil

	s.lastMu.Lock()
	s.lastEvent = &snapshot
	s.lastError = ""
	s.lastMu.Unlock()
}

func (s *Scanner) setLastError(err error) {
	s.lastMu.Lock()
	s.lastError = err.Error()
	s.lastMu.Unlock()
}
