// Package paddynet wraps the PaddyNet pest classification model. The
// model is loaded lazily on first use: construction never touches the
// filesystem, so the daemon can come up even when the model file is
// still being provisioned. Concurrent first callers coalesce into a
// single load, and a failed load is sticky until Retry is called.
package paddynet

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
	"golang.org/x/sync/singleflight"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/cpuspec"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/logging"
)

const (
	loadRetryAttempts       = 3
	loadRetryInitialBackoff = 500 * time.Millisecond
	loadRetryMaxBackoff     = 5 * time.Second

	// DefaultTopK bounds the ranked results when paddynet.topk is unset.
	DefaultTopK = 5
)

// Default label order of the bundled PaddyNet model. Overridden by
// paddynet.labelpath for custom models.
//
//go:embed labels.txt
var embeddedLabels string

// Package-level logger specific to the paddynet service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "paddynet.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "paddynet", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize paddynet file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "paddynet")
		closeLogger = func() error { return nil }
	}
}

// inferencer is the model backend: it takes a flattened input tensor
// and returns the raw output vector in model label order.
type inferencer interface {
	Invoke(input []float32) ([]float32, error)
	Close()
}

// PaddyNet is the lazy-loading pest classifier.
type PaddyNet struct {
	settings *conf.Settings

	// mu serializes inference, TFLite interpreters are not reentrant.
	mu        sync.Mutex
	loadGroup singleflight.Group
	loader    func() (inferencer, []string, error)
	sleep     func(time.Duration)

	stateMu sync.RWMutex
	inf     inferencer
	labels  []string
	loadErr error // sticky until Retry
}

// New builds an unloaded classifier. The model file is first touched by
// the initial Classify call.
func New(settings *conf.Settings) *PaddyNet {
	pn := &PaddyNet{
		settings: settings,
		sleep:    time.Sleep,
	}
	pn.loader = pn.loadTFLite
	return pn
}

// Labels returns the label order of the loaded model, nil before the
// first successful load.
func (pn *PaddyNet) Labels() []string {
	pn.stateMu.RLock()
	defer pn.stateMu.RUnlock()
	if pn.labels == nil {
		return nil
	}
	out := make([]string, len(pn.labels))
	copy(out, pn.labels)
	return out
}

// Loaded reports whether the model is resident.
func (pn *PaddyNet) Loaded() bool {
	pn.stateMu.RLock()
	defer pn.stateMu.RUnlock()
	return pn.inf != nil
}

// Retry clears a sticky load failure so the next Classify attempts a
// fresh load. A resident model is left alone.
func (pn *PaddyNet) Retry() {
	pn.stateMu.Lock()
	defer pn.stateMu.Unlock()
	if pn.inf == nil && pn.loadErr != nil {
		logger.Info("Clearing sticky model load failure")
		pn.loadErr = nil
	}
}

// Close releases the interpreter. Waits for in-flight inference.
func (pn *PaddyNet) Close() {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	pn.stateMu.Lock()
	defer pn.stateMu.Unlock()
	if pn.inf != nil {
		pn.inf.Close()
		pn.inf = nil
		pn.labels = nil
	}
}

// ensureLoaded returns the resident backend, loading it on first use.
// Concurrent callers during a load share one singleflight execution;
// a caller whose ctx expires abandons the wait while the load itself
// keeps running for the others.
func (pn *PaddyNet) ensureLoaded(ctx context.Context) (inferencer, []string, error) {
	pn.stateMu.RLock()
	if pn.inf != nil {
		inf, labels := pn.inf, pn.labels
		pn.stateMu.RUnlock()
		return inf, labels, nil
	}
	if pn.loadErr != nil {
		err := pn.loadErr
		pn.stateMu.RUnlock()
		return nil, nil, err
	}
	pn.stateMu.RUnlock()

	ch := pn.loadGroup.DoChan("load", func() (any, error) {
		return nil, pn.loadWithRetry()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
	case <-ctx.Done():
		return nil, nil, errors.New(ctx.Err()).
			Component("paddynet").
			Category(errors.CategoryCancellation).
			Context("operation", "model_load_wait").
			Build()
	}

	pn.stateMu.RLock()
	defer pn.stateMu.RUnlock()
	if pn.inf == nil {
		return nil, nil, pn.loadErr
	}
	return pn.inf, pn.labels, nil
}

// loadWithRetry drives the retry budget around the loader. Exhaustion
// records a sticky failure so later calls fail fast until Retry.
func (pn *PaddyNet) loadWithRetry() error {
	var lastErr error
	for attempt := 1; attempt <= loadRetryAttempts; attempt++ {
		start := time.Now()
		inf, labels, err := pn.loader()
		if err == nil {
			pn.stateMu.Lock()
			pn.inf, pn.labels, pn.loadErr = inf, labels, nil
			pn.stateMu.Unlock()
			if m := getMetrics(); m != nil {
				m.RecordLoadDuration(time.Since(start).Seconds())
			}
			logger.Info("PaddyNet model ready",
				"labels", len(labels),
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		}
		lastErr = err
		if m := getMetrics(); m != nil {
			m.IncrementLoadFailures()
		}
		logger.Warn("PaddyNet model load failed",
			"attempt", attempt,
			"max_attempts", loadRetryAttempts,
			"error", err)
		if attempt < loadRetryAttempts {
			pn.sleep(loadBackoff(attempt))
		}
	}

	err := errors.New(fmt.Errorf("model load failed after %d attempts: %w", loadRetryAttempts, lastErr)).
		Component("paddynet").
		Category(errors.CategoryModelLoad).
		Context("attempts", loadRetryAttempts).
		Build()

	pn.stateMu.Lock()
	pn.loadErr = err
	pn.stateMu.Unlock()
	return err
}

// loadBackoff doubles the initial delay per attempt, jittered by plus
// or minus ten percent, capped at loadRetryMaxBackoff.
func loadBackoff(attempt int) time.Duration {
	d := loadRetryInitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if d > loadRetryMaxBackoff {
		d = loadRetryMaxBackoff
	}
	jitter := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * jitter)
}

// loadTFLite is the production loader: reads the model file, builds the
// interpreter and resolves the label order.
func (pn *PaddyNet) loadTFLite() (inferencer, []string, error) {
	modelPath := pn.settings.PaddyNet.ModelPath
	if modelPath == "" {
		return nil, nil, errors.New(fmt.Errorf("paddynet model path is not configured")).
			Component("paddynet").
			Category(errors.CategoryModelLoad).
			Build()
	}

	modelPath, err := expandPath(modelPath)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("paddynet").
			Category(errors.CategoryModelLoad).
			Context("model_path", modelPath).
			Build()
	}

	modelData, err := os.ReadFile(modelPath) //nolint:gosec // G304: modelPath is from application settings
	if err != nil {
		return nil, nil, errors.New(err).
			Component("paddynet").
			Category(errors.CategoryModelLoad).
			Context("model_path", modelPath).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("paddynet").
			Category(errors.CategoryModelInit).
			Context("model_path", modelPath).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := pn.determineThreadCount()
	options := tflite.NewInterpreterOptions()

	if pn.settings.PaddyNet.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count, safe conversion
		if delegate == nil {
			logger.Warn("Failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, userData any) {
		logger.Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("paddynet").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, nil, errors.New(fmt.Errorf("tensor allocation failed")).
			Component("paddynet").
			Category(errors.CategoryModelInit).
			Build()
	}

	labels, err := pn.loadLabels()
	if err != nil {
		interpreter.Delete()
		return nil, nil, err
	}

	// The output vector must line up with the label order or every
	// downstream confidence is attributed to the wrong pest.
	output := interpreter.GetOutputTensor(0)
	if output == nil {
		interpreter.Delete()
		return nil, nil, errors.New(fmt.Errorf("cannot get output tensor")).
			Component("paddynet").
			Category(errors.CategoryModelInit).
			Build()
	}
	outputSize := output.Dim(output.NumDims() - 1)
	if outputSize != len(labels) {
		interpreter.Delete()
		return nil, nil, errors.New(fmt.Errorf("model output size %d does not match label count %d", outputSize, len(labels))).
			Component("paddynet").
			Category(errors.CategoryLabelLoad).
			Context("output_size", outputSize).
			Context("label_count", len(labels)).
			Build()
	}

	// TFLite keeps its own copy of the model data.
	runtime.GC()

	return &tfliteInferencer{interpreter: interpreter}, labels, nil
}

// determineThreadCount honors the configured override, otherwise asks
// cpuspec for the performance core count.
func (pn *PaddyNet) determineThreadCount() int {
	if configured := pn.settings.PaddyNet.Threads; configured > 0 {
		if configured > runtime.NumCPU() {
			return runtime.NumCPU()
		}
		return configured
	}
	return cpuspec.GetCPUSpec().GetOptimalThreadCount()
}

// loadLabels resolves the label order, embedded by default or from
// paddynet.labelpath for custom models.
func (pn *PaddyNet) loadLabels() ([]string, error) {
	labelPath := pn.settings.PaddyNet.LabelPath
	if labelPath == "" {
		labels := parseLabelData(embeddedLabels)
		if len(labels) == 0 {
			return nil, errors.New(fmt.Errorf("embedded label data is empty")).
				Component("paddynet").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		return labels, nil
	}

	labelPath, err := expandPath(labelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("paddynet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", labelPath).
			Build()
	}

	data, err := os.ReadFile(labelPath) //nolint:gosec // G304: labelPath is from application settings
	if err != nil {
		return nil, errors.New(err).
			Component("paddynet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", labelPath).
			Build()
	}

	labels := parseLabelData(string(data))
	if len(labels) == 0 {
		return nil, errors.New(fmt.Errorf("label file is empty")).
			Component("paddynet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", labelPath).
			Build()
	}
	return labels, nil
}

// parseLabelData splits label data into one trimmed label per line.
func parseLabelData(data string) []string {
	var labels []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			labels = append(labels, line)
		}
	}
	return labels
}

// expandPath expands environment variables and a leading ~ in paths
// coming from configuration.
func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// tfliteInferencer adapts a TFLite interpreter to the inferencer
// contract. Callers serialize access.
type tfliteInferencer struct {
	interpreter *tflite.Interpreter
}

func (t *tfliteInferencer) Invoke(input []float32) ([]float32, error) {
	in := t.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	buf := in.Float32s()
	if len(buf) != len(input) {
		return nil, fmt.Errorf("input size mismatch: tensor wants %d values, got %d", len(buf), len(input))
	}
	copy(buf, input)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := t.interpreter.GetOutputTensor(0)
	if out == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	size := out.Dim(out.NumDims() - 1)
	raw := make([]float32, size)
	copy(raw, out.Float32s())
	return raw, nil
}

func (t *tfliteInferencer) Close() {
	t.interpreter.Delete()
}
