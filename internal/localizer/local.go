package localizer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/cpuspec"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/imagery"
)

// LocalDetector runs an on-device SSD-style TFLite detector. The model
// emits four output tensors per invoke: normalized boxes in
// [ymin,xmin,ymax,xmax] order, class indexes, scores and a valid count.
// Class indexes map through a label file; an optional allow-list keeps
// only the classes configured as pest proxies.
type LocalDetector struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	labels      []string
	allow       map[string]struct{}
	minScore    float64
	inputSize   int
}

// NewLocalDetector loads the detector model and labels eagerly. The
// detector is cheap next to the classifier, so there is no lazy load.
func NewLocalDetector(settings *conf.Settings) (*LocalDetector, error) {
	lc := settings.Localizer.Local
	if lc.ModelPath == "" {
		return nil, errors.New(fmt.Errorf("local localizer requires a model path")).
			Component("localizer").
			Category(errors.CategoryConfiguration).
			Build()
	}

	model := tflite.NewModelFromFile(lc.ModelPath)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load detector model")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("model_path", lc.ModelPath).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(cpuspec.GetCPUSpec().GetOptimalThreadCount())
	options.SetErrorReporter(func(msg string, userData any) {
		logger.Error("TFLite detector error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.New(fmt.Errorf("cannot create detector interpreter")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("model_path", lc.ModelPath).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, errors.New(fmt.Errorf("detector tensor allocation failed")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("model_path", lc.ModelPath).
			Build()
	}

	input := interpreter.GetInputTensor(0)
	if input.NumDims() != 4 {
		interpreter.Delete()
		return nil, errors.New(fmt.Errorf("detector input tensor has %d dims, want 4", input.NumDims())).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Build()
	}
	inputSize := input.Dim(1)

	labels, err := loadDetectorLabels(lc.LabelPath)
	if err != nil {
		interpreter.Delete()
		return nil, err
	}

	var allow map[string]struct{}
	if len(lc.AllowList) > 0 {
		allow = make(map[string]struct{}, len(lc.AllowList))
		for _, name := range lc.AllowList {
			allow[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
	}

	logger.Info("Local detector ready",
		"model_path", lc.ModelPath,
		"labels", len(labels),
		"input_size", inputSize,
		"allow_list", len(lc.AllowList))

	return &LocalDetector{
		interpreter: interpreter,
		labels:      labels,
		allow:       allow,
		minScore:    lc.MinScore,
		inputSize:   inputSize,
	}, nil
}

// loadDetectorLabels reads one class label per line.
func loadDetectorLabels(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New(fmt.Errorf("local localizer requires a label path")).
			Component("localizer").
			Category(errors.CategoryConfiguration).
			Build()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("label_path", path).
			Build()
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close detector label file", "path", path, "error", err)
		}
	}()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("label_path", path).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.New(fmt.Errorf("detector label file is empty")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("label_path", path).
			Build()
	}
	return labels, nil
}

// Name implements Localizer.
func (ld *LocalDetector) Name() string { return "local" }

// DetectRegions implements Localizer. The frame is resized to the
// detector's input size, invoked under the interpreter mutex, and the
// normalized boxes are scaled back to frame pixel coordinates.
func (ld *LocalDetector) DetectRegions(ctx context.Context, frm *frame.Frame) ([]Region, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "local").
			Build()
	}

	tensor, err := imagery.Preprocess(frm, ld.inputSize)
	if err != nil {
		return nil, errors.New(err).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "local").
			Context("operation", "preprocess").
			Build()
	}
	defer tensor.Close()

	ld.mu.Lock()
	defer ld.mu.Unlock()

	input := ld.interpreter.GetInputTensor(0)
	copy(input.Float32s(), tensor.Data())

	if status := ld.interpreter.Invoke(); status != tflite.OK {
		if m := getMetrics(); m != nil {
			m.IncrementDetectErrors("local")
		}
		return nil, errors.New(fmt.Errorf("detector invoke failed")).
			Component("localizer").
			Category(errors.CategoryLocalizer).
			Context("strategy", "local").
			Build()
	}

	regions := ld.collectDetections(frm.Width, frm.Height)

	if m := getMetrics(); m != nil {
		m.IncrementDetectRequests("local")
		m.RecordDetectDuration("local", time.Since(start).Seconds())
		m.RecordRegionCount("local", len(regions))
	}

	logger.Debug("Local detection complete",
		"source", frm.Source,
		"regions", len(regions),
		"duration_ms", time.Since(start).Milliseconds())

	return regions, nil
}

// collectDetections reads the four SSD output tensors and converts
// qualifying rows to frame-pixel regions. Caller holds the mutex.
func (ld *LocalDetector) collectDetections(frameWidth, frameHeight int) []Region {
	boxes := ld.interpreter.GetOutputTensor(0).Float32s()
	classes := ld.interpreter.GetOutputTensor(1).Float32s()
	scores := ld.interpreter.GetOutputTensor(2).Float32s()
	countTensor := ld.interpreter.GetOutputTensor(3).Float32s()

	count := 0
	if len(countTensor) > 0 {
		count = int(countTensor[0])
	}
	if count > len(scores) {
		count = len(scores)
	}

	fw, fh := float64(frameWidth), float64(frameHeight)
	var regions []Region
	for i := 0; i < count; i++ {
		score := float64(scores[i])
		if score < ld.minScore {
			continue
		}
		if i*4+3 >= len(boxes) || i >= len(classes) {
			break
		}

		label := ""
		if idx := int(classes[i]); idx >= 0 && idx < len(ld.labels) {
			label = ld.labels[idx]
		}
		if ld.allow != nil {
			if _, ok := ld.allow[strings.ToLower(label)]; !ok {
				continue
			}
		}

		ymin := float64(boxes[i*4]) * fh
		xmin := float64(boxes[i*4+1]) * fw
		ymax := float64(boxes[i*4+2]) * fh
		xmax := float64(boxes[i*4+3]) * fw

		region := Region{
			X:      xmin,
			Y:      ymin,
			Width:  xmax - xmin,
			Height: ymax - ymin,
			Score:  score,
			Label:  label,
		}.Clamp(frameWidth, frameHeight)
		if region.Empty() {
			continue
		}
		regions = append(regions, region)
	}
	return regions
}

// Close implements Localizer.
func (ld *LocalDetector) Close() error {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if ld.interpreter != nil {
		ld.interpreter.Delete()
		ld.interpreter = nil
	}
	return nil
}
