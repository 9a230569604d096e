package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/imagery"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// Pipeline stage names, used for failure metrics and log context.
const (
	stageCapture    = "capture"
	stagePreprocess = "preprocess"
	stageLocalize   = "localize"
	stageClassify   = "classify"
	stageReconcile  = "reconcile"
)

// Stage timeout fallbacks when the configuration leaves them unset.
const (
	defaultCaptureTimeout = 5 * time.Second
	defaultStageTimeout   = 10 * time.Second
)

// stageError tags a stage failure with the stage that produced it. It
// unwraps to the underlying error so category predicates keep working.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + " stage: " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func failStage(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// failedStage extracts the stage name from an iteration error.
func failedStage(err error) string {
	var se *stageError
	if stderrors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

func (s *Scanner) iterate(ctx context.Context) (*processor.DetectionEvent, error) {
	return s.iterateFrom(ctx, s.source)
}

// iterateFrom runs one full pipeline pass over the given source:
// capture, localize, gate, then preprocess+classify+reconcile per
// qualifying region, dispatching every resulting event. The frame and
// all tensors are released before return on every path. It returns the
// last dispatched event.
func (s *Scanner) iterateFrom(ctx context.Context, source frame.Source) (*processor.DetectionEvent, error) {
	start := time.Now()

	frm, err := s.capture(ctx, source)
	if err != nil {
		return nil, failStage(stageCapture, err)
	}
	defer frm.Close()

	regions := s.qualifyingRegions(ctx, frm)

	// An empty scene never touches the classifier: its lazy load must
	// not be triggered, and the expensive stage is saved entirely.
	if len(regions) == 0 {
		event := s.engine.NoDetectionEvent()
		event.Source = frm.Source
		event.Frame = frm
		event.ProcessingTime = time.Since(start)
		s.dispatch(ctx, event)
		return event, nil
	}

	var last *processor.DetectionEvent
	for _, region := range regions {
		event, err := s.classifyRegion(ctx, frm, region)
		if err != nil {
			return last, err
		}
		event.Source = frm.Source
		event.Frame = frm
		event.ProcessingTime = time.Since(start)
		s.dispatch(ctx, event)
		last = event
	}
	return last, nil
}

// capture pulls one frame under the capture timeout.
func (s *Scanner) capture(ctx context.Context, source frame.Source) (*frame.Frame, error) {
	timeout := defaultCaptureTimeout
	if s.settings != nil && s.settings.Realtime.Source.Timeout > 0 {
		timeout = time.Duration(s.settings.Realtime.Source.Timeout) * time.Second
	}
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return source.Capture(captureCtx)
}

// qualifyingRegions runs the localizer and applies the acceptance gate:
// clamp to the frame, drop empty boxes and boxes under
// localizer.minregionscore. A localizer failure degrades to zero
// regions so a dead endpoint cannot abort scanning; the failure is
// still logged and counted.
func (s *Scanner) qualifyingRegions(ctx context.Context, frm *frame.Frame) []localizer.Region {
	if s.localizer == nil {
		return []localizer.Region{passthroughRegion(frm)}
	}

	timeout := defaultStageTimeout
	if s.settings != nil && s.settings.Realtime.Timeouts.Localize > 0 {
		timeout = time.Duration(s.settings.Realtime.Timeouts.Localize) * time.Second
	}
	localizeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proposed, err := s.localizer.DetectRegions(localizeCtx, frm)
	if err != nil {
		if m := getMetrics(); m != nil {
			m.IncrementStageFailure(stageLocalize)
		}
		logger.Warn("Localizer failed, treating frame as empty",
			"strategy", s.localizer.Name(),
			"source", frm.Source,
			"error", err)
		return nil
	}

	gate := 0.45
	if s.settings != nil && s.settings.Localizer.MinRegionScore > 0 {
		gate = s.settings.Localizer.MinRegionScore
	}

	qualifying := make([]localizer.Region, 0, len(proposed))
	for _, region := range proposed {
		if region.Score < gate {
			continue
		}
		clamped := region.Clamp(frm.Width, frm.Height)
		if clamped.Empty() {
			continue
		}
		qualifying = append(qualifying, clamped)
	}

	logger.Debug("Localizer pass complete",
		"strategy", s.localizer.Name(),
		"proposed", len(proposed),
		"qualifying", len(qualifying))
	return qualifying
}

// classifyRegion preprocesses one region crop, classifies it and
// reconciles the verdict. The tensor never outlives the call.
func (s *Scanner) classifyRegion(ctx context.Context, frm *frame.Frame, region localizer.Region) (*processor.DetectionEvent, error) {
	tensor, err := s.preprocessRegion(ctx, frm, region)
	if err != nil {
		return nil, failStage(stagePreprocess, err)
	}
	defer tensor.Close()

	timeout := defaultStageTimeout
	if s.settings != nil && s.settings.Realtime.Timeouts.Classify > 0 {
		timeout = time.Duration(s.settings.Realtime.Timeouts.Classify) * time.Second
	}
	classifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	verdict, err := s.classifier.Classify(classifyCtx, tensor)
	if err != nil {
		return nil, failStage(stageClassify, err)
	}

	event, err := s.engine.Reconcile(verdict, []localizer.Region{region})
	if err != nil {
		return nil, failStage(stageReconcile, err)
	}
	return event, nil
}

// preprocessRegion crops and normalizes one region. Decode is
// in-process CPU work and cannot be interrupted midway; the preprocess
// timeout bounds the wait before it starts.
func (s *Scanner) preprocessRegion(ctx context.Context, frm *frame.Frame, region localizer.Region) (*imagery.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("preprocess aborted: %w", err)
	}

	if coversFrame(region, frm) {
		return imagery.Preprocess(frm, imagery.DefaultTargetSize)
	}
	return imagery.PreprocessRegion(frm, region.Rect(), imagery.DefaultTargetSize)
}

// dispatch hands the event to the processor and records event metrics.
func (s *Scanner) dispatch(ctx context.Context, event *processor.DetectionEvent) {
	s.dispatcher.DispatchEvent(ctx, event)

	if m := getMetrics(); m != nil {
		if event.Detected {
			m.IncrementEvents("detected")
			m.IncrementDetections(event.PestType)
		} else {
			m.IncrementEvents("rejected")
		}
	}
}

// passthroughRegion covers the whole frame with full confidence, used
// when no localizer stage is configured.
func passthroughRegion(frm *frame.Frame) localizer.Region {
	return localizer.Region{
		Width:  float64(frm.Width),
		Height: float64(frm.Height),
		Score:  1.0,
	}
}

// coversFrame reports whether the region spans the entire frame, in
// which case the crop path is skipped.
func coversFrame(region localizer.Region, frm *frame.Frame) bool {
	return region.X <= 0 && region.Y <= 0 &&
		region.Width >= float64(frm.Width) && region.Height >= float64(frm.Height)
}

var _ Classifier = (*paddynet.PaddyNet)(nil)
