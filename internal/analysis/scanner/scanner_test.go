package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/imagery"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// verifyNoLeaks asserts no goroutines outlive the test, ignoring the
// lumberjack rotation worker the package loggers start on first write.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"))
}

func scannerSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Main.Name = "PaddyStation"
	settings.Detection.MinConfidence = 90
	settings.Detection.MinMargin = 10
	settings.Detection.NoPestLabel = "no pest"
	settings.Localizer.MinRegionScore = 0.45
	settings.Realtime.Scan.Interval = 700
	settings.Realtime.Source.Timeout = 5
	return settings
}

// encodePNG renders a small solid image for pipeline tests.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 80, G: 160, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testFrame(t *testing.T) *frame.Frame {
	t.Helper()
	frm, err := frame.NewFrame(encodePNG(t, 48, 32), "test")
	require.NoError(t, err)
	return frm
}

// fakeSource yields frames through a capture function so tests can
// block, fail or count captures.
type fakeSource struct {
	captures  atomic.Int64
	captureFn func(ctx context.Context) (*frame.Frame, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Capture(ctx context.Context) (*frame.Frame, error) {
	f.captures.Add(1)
	return f.captureFn(ctx)
}

func frameSource(t *testing.T) *fakeSource {
	return &fakeSource{captureFn: func(context.Context) (*frame.Frame, error) {
		return testFrame(t), nil
	}}
}

type fakeLocalizer struct {
	regions []localizer.Region
	err     error
	calls   atomic.Int64
}

func (f *fakeLocalizer) Name() string { return "fake" }
func (f *fakeLocalizer) Close() error { return nil }

func (f *fakeLocalizer) DetectRegions(context.Context, *frame.Frame) ([]localizer.Region, error) {
	f.calls.Add(1)
	return f.regions, f.err
}

type fakeClassifier struct {
	calls atomic.Int64
	raw   []float32
	label string
	err   error
}

func (f *fakeClassifier) Classify(context.Context, *imagery.Tensor) (*paddynet.ClassificationVerdict, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &paddynet.ClassificationVerdict{
		Ranked:    []paddynet.LabelScore{{Label: f.label, Score: f.raw[0]}},
		RawScores: f.raw,
	}, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []*processor.DetectionEvent
}

func (f *fakeDispatcher) DispatchEvent(_ context.Context, event *processor.DetectionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeDispatcher) last() *processor.DetectionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func newTestScanner(settings *conf.Settings, source frame.Source, loc localizer.Localizer, cls Classifier, disp *fakeDispatcher) *Scanner {
	engine := processor.NewReconciliationEngine(settings, nil)
	s := New(settings, source, loc, cls, engine, disp)
	s.tickOverride = 10 * time.Millisecond
	return s
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never held: %s", msg)
}

func TestStartIsIdempotent(t *testing.T) {
	defer verifyNoLeaks(t)

	src := frameSource(t)
	disp := &fakeDispatcher{}
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.02, 0.02, 0.01}}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, cls, disp)

	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Start(t.Context()), "second start must be a no-op")
	assert.True(t, s.Running())

	waitFor(t, func() bool { return s.Status().Iterations >= 3 }, "iterations")
	before := src.captures.Load()

	// With a second ticker running the capture counter would advance
	// roughly twice per interval. Give it a few intervals and compare.
	time.Sleep(50 * time.Millisecond)
	after := src.captures.Load()
	assert.LessOrEqual(t, after-before, int64(8), "double start must not create a second cadence")

	s.Stop()
	assert.False(t, s.Running())
}

func TestStopIsIdempotent(t *testing.T) {
	defer verifyNoLeaks(t)

	s := newTestScanner(scannerSettings(), frameSource(t), &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, &fakeDispatcher{})

	assert.NotPanics(t, func() { s.Stop() }, "stopping an idle scanner is a no-op")

	require.NoError(t, s.Start(t.Context()))
	s.Stop()
	assert.NotPanics(t, func() { s.Stop() })
}

func TestInFlightGuardSkipsTicks(t *testing.T) {
	defer verifyNoLeaks(t)

	release := make(chan struct{})
	var started atomic.Int64
	src := &fakeSource{}
	src.captureFn = func(ctx context.Context) (*frame.Frame, error) {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return testFrame(t), nil
	}

	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{label: "x", raw: []float32{0.1, 0.1}}, disp)

	require.NoError(t, s.Start(t.Context()))

	waitFor(t, func() bool { return started.Load() == 1 }, "first capture started")
	waitFor(t, func() bool { return s.Status().Skipped >= 3 }, "ticks skipped while capture blocks")

	assert.Equal(t, int64(1), started.Load(), "no second iteration may begin while one is in flight")
	assert.True(t, s.Status().InFlight)

	close(release)
	waitFor(t, func() bool { return s.Status().Iterations >= 1 }, "blocked iteration completed")
	s.Stop()
}

func TestStopDeliversInFlightIterationOnce(t *testing.T) {
	defer verifyNoLeaks(t)

	release := make(chan struct{})
	var started atomic.Int64
	src := &fakeSource{}
	src.captureFn = func(ctx context.Context) (*frame.Frame, error) {
		started.Add(1)
		<-release
		return testFrame(t), nil
	}

	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{label: "x", raw: []float32{0.1, 0.1}}, disp)

	require.NoError(t, s.Start(t.Context()))
	waitFor(t, func() bool { return started.Load() == 1 }, "capture in flight")

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop must wait for the in-flight iteration")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped

	assert.Equal(t, 1, disp.count(), "the in-flight iteration delivers exactly once")
	assert.Equal(t, int64(1), started.Load(), "no iteration starts after Stop")
}

func TestZeroQualifyingRegionsSkipClassifier(t *testing.T) {
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.05}}
	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), frameSource(t), &fakeLocalizer{}, cls, disp)

	event, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(0), cls.calls.Load(), "an empty frame must not invoke the classifier")
	assert.False(t, event.Detected)
	assert.Empty(t, event.Regions)
	assert.Equal(t, processor.NoDetectionLabel, event.PestType)
	assert.Equal(t, 1, disp.count())
}

func TestRegionsUnderGateSkipClassifier(t *testing.T) {
	loc := &fakeLocalizer{regions: []localizer.Region{
		{X: 2, Y: 2, Width: 10, Height: 10, Score: 0.30, Label: "weevil"},
	}}
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.05}}
	s := newTestScanner(scannerSettings(), frameSource(t), loc, cls, &fakeDispatcher{})

	event, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(0), cls.calls.Load())
	assert.False(t, event.Detected)
}

func TestQualifyingRegionReachesClassifier(t *testing.T) {
	loc := &fakeLocalizer{regions: []localizer.Region{
		{X: 4, Y: 4, Width: 20, Height: 16, Score: 0.80, Label: "weevil"},
	}}
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.02, 0.02, 0.01}}
	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), frameSource(t), loc, cls, disp)

	event, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(1), cls.calls.Load())
	assert.True(t, event.Detected)
	assert.Equal(t, "Rice Black Bug", event.PestType)
	assert.Equal(t, 95, event.Confidence)
	require.Len(t, event.Regions, 1)
	assert.Equal(t, 0.80, event.Regions[0].Score)
}

func TestLocalizerFailureDegradesToEmptyScene(t *testing.T) {
	loc := &fakeLocalizer{err: errors.Newf("endpoint is gone").
		Component("localizer").
		Category(errors.CategoryLocalizer).
		Build()}
	cls := &fakeClassifier{label: "x", raw: []float32{0.9, 0.1}}
	s := newTestScanner(scannerSettings(), frameSource(t), loc, cls, &fakeDispatcher{})

	event, err := s.RunOnce(t.Context())
	require.NoError(t, err, "a localizer outage must not abort the iteration")

	assert.False(t, event.Detected)
	assert.Equal(t, int64(0), cls.calls.Load())
}

func TestRunOncePropagatesCaptureError(t *testing.T) {
	src := &fakeSource{}
	src.captureFn = func(context.Context) (*frame.Frame, error) {
		return nil, errors.Newf("camera not ready").
			Component("frame").
			Category(errors.CategoryCaptureUnavailable).
			Build()
	}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, &fakeDispatcher{})

	_, err := s.RunOnce(t.Context())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCaptureUnavailable))
	assert.Equal(t, stageCapture, failedStage(err))
}

func TestRunOncePropagatesClassifierError(t *testing.T) {
	loc := &fakeLocalizer{regions: []localizer.Region{
		{X: 0, Y: 0, Width: 48, Height: 32, Score: 0.9},
	}}
	cls := &fakeClassifier{err: errors.Newf("model load failed").
		Component("paddynet").
		Category(errors.CategoryModelLoad).
		Build()}
	s := newTestScanner(scannerSettings(), frameSource(t), loc, cls, &fakeDispatcher{})

	_, err := s.RunOnce(t.Context())
	require.Error(t, err)
	assert.Equal(t, stageClassify, failedStage(err))
}

func TestContinuousLoopSurvivesStageFailures(t *testing.T) {
	defer verifyNoLeaks(t)

	var calls atomic.Int64
	src := &fakeSource{}
	src.captureFn = func(context.Context) (*frame.Frame, error) {
		if calls.Add(1)%2 == 1 {
			return nil, errors.Newf("transient capture failure").
				Component("frame").
				Category(errors.CategoryCaptureFailed).
				Build()
		}
		return testFrame(t), nil
	}

	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, disp)

	require.NoError(t, s.Start(t.Context()))
	waitFor(t, func() bool {
		status := s.Status()
		return status.Failures >= 2 && status.Iterations >= 4
	}, "loop survives alternating failures")
	s.Stop()

	status := s.Status()
	assert.NotEmpty(t, status.LastError)
	assert.Greater(t, disp.count(), 0, "successful ticks still deliver events")
}

func TestRunOnceRejectedWhileIterationInFlight(t *testing.T) {
	defer verifyNoLeaks(t)

	release := make(chan struct{})
	src := &fakeSource{}
	src.captureFn = func(context.Context) (*frame.Frame, error) {
		<-release
		return testFrame(t), nil
	}

	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, &fakeDispatcher{})
	require.NoError(t, s.Start(t.Context()))
	waitFor(t, func() bool { return src.captures.Load() == 1 }, "capture in flight")

	_, err := s.RunOnce(t.Context())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))

	close(release)
	s.Stop()
}

func TestMultipleQualifyingRegionsEachDispatch(t *testing.T) {
	loc := &fakeLocalizer{regions: []localizer.Region{
		{X: 0, Y: 0, Width: 16, Height: 16, Score: 0.9, Label: "a"},
		{X: 20, Y: 8, Width: 16, Height: 16, Score: 0.7, Label: "b"},
		{X: 30, Y: 20, Width: 10, Height: 10, Score: 0.2, Label: "under-gate"},
	}}
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.02, 0.02, 0.01}}
	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), frameSource(t), loc, cls, disp)

	_, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(2), cls.calls.Load(), "one classification per qualifying region")
	assert.Equal(t, 2, disp.count())
}

func TestStatusLastEventDropsFrameHandle(t *testing.T) {
	disp := &fakeDispatcher{}
	s := newTestScanner(scannerSettings(), frameSource(t), &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, disp)

	_, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	status := s.Status()
	require.NotNil(t, status.LastEvent)
	assert.Nil(t, status.LastEvent.Frame, "the status snapshot must not retain the frame")
	require.NotNil(t, disp.last().Frame, "dispatch sees the frame while the iteration lives")
}

func TestFrameClosedAfterIteration(t *testing.T) {
	var captured *frame.Frame
	src := &fakeSource{}
	src.captureFn = func(context.Context) (*frame.Frame, error) {
		captured = testFrame(t)
		return captured, nil
	}
	s := newTestScanner(scannerSettings(), src, &fakeLocalizer{}, &fakeClassifier{raw: []float32{0, 0}}, &fakeDispatcher{})

	_, err := s.RunOnce(t.Context())
	require.NoError(t, err)
	assert.True(t, captured.Closed(), "the iteration owns and releases its frame")
}

func TestFrameClosedOnStageFailure(t *testing.T) {
	var captured *frame.Frame
	src := &fakeSource{}
	src.captureFn = func(context.Context) (*frame.Frame, error) {
		captured = testFrame(t)
		return captured, nil
	}
	loc := &fakeLocalizer{regions: []localizer.Region{
		{X: 0, Y: 0, Width: 48, Height: 32, Score: 0.9},
	}}
	cls := &fakeClassifier{err: errors.Newf("inference broke").
		Component("paddynet").
		Category(errors.CategoryInference).
		Build()}
	s := newTestScanner(scannerSettings(), src, loc, cls, &fakeDispatcher{})

	_, err := s.RunOnce(t.Context())
	require.Error(t, err)
	assert.True(t, captured.Closed(), "failure paths release the frame too")
}

func TestNilLocalizerActsAsPassthrough(t *testing.T) {
	cls := &fakeClassifier{label: "Rice Black Bug", raw: []float32{0.95, 0.02, 0.02, 0.01}}
	s := newTestScanner(scannerSettings(), frameSource(t), nil, cls, &fakeDispatcher{})

	event, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	assert.True(t, event.Detected)
	assert.Equal(t, int64(1), cls.calls.Load())
	require.Len(t, event.Regions, 1)
	assert.Equal(t, 48.0, event.Regions[0].Width, "passthrough covers the whole frame")
}

func TestStartWithoutSourceFails(t *testing.T) {
	s := newTestScanner(scannerSettings(), nil, nil, &fakeClassifier{raw: []float32{0, 0}}, &fakeDispatcher{})
	require.Error(t, s.Start(t.Context()))
}
