// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryModelInit          ErrorCategory = "model-initialization"
	CategoryModelLoad          ErrorCategory = "model-loading"
	CategoryLabelLoad          ErrorCategory = "label-loading"
	CategoryInference          ErrorCategory = "inference"
	CategoryCaptureUnavailable ErrorCategory = "capture-unavailable"
	CategoryCaptureFailed      ErrorCategory = "capture-failed"
	CategoryPreprocess         ErrorCategory = "image-preprocess"
	CategoryLocalizer          ErrorCategory = "localizer"
	CategoryReconcileInput     ErrorCategory = "reconcile-input"
	CategoryValidation         ErrorCategory = "validation"
	CategoryFileIO             ErrorCategory = "file-io"
	CategoryNetwork            ErrorCategory = "network"
	CategoryHTTP               ErrorCategory = "http-request"
	CategoryDatabase           ErrorCategory = "database"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryMQTTConnection     ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish        ErrorCategory = "mqtt-publish"
	CategoryNotification       ErrorCategory = "notification"
	CategoryDiskCleanup        ErrorCategory = "disk-cleanup"
	CategoryCatalog            ErrorCategory = "catalog"
	CategoryNotFound           ErrorCategory = "not-found"
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryCancellation       ErrorCategory = "cancellation"
	CategoryState              ErrorCategory = "state"
	CategoryProcessing         ErrorCategory = "processing"
	CategoryGeneric            ErrorCategory = "generic"
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred (lazily detected)
	Category  ErrorCategory  // Error category for better grouping
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	reported  bool           // Whether telemetry has been sent
	mu        sync.RWMutex
	detected  bool
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap returns the original error for errors.Is/As chains
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is reports whether target matches this error or its chain
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component, detecting it lazily if needed
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	if ee.detected {
		defer ee.mu.RUnlock()
		return ee.component
	}
	ee.mu.RUnlock()

	ee.mu.Lock()
	defer ee.mu.Unlock()
	if !ee.detected {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		ee.detected = true
	}
	return ee.component
}

// GetCategory returns the error category as a string
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetPriority returns the explicit priority, or empty when unset
func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the context map
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	cp := make(map[string]any, len(ee.Context))
	maps.Copy(cp, ee.Context)
	return cp
}

// GetTimestamp returns when the error was built
func (ee *EnhancedError) GetTimestamp() time.Time {
	return ee.Timestamp
}

// MarkReported flags that telemetry has been sent for this error
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported returns whether telemetry has been sent
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder provides a fluent interface for enhanced error construction
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts building an enhanced error from an existing error
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string
func Newf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: fmt.Errorf(format, args...)}
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the telemetry priority derived from the category
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	eb.priority = priority
	return eb
}

// Context adds a key-value pair to the error context
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext adds model path and version to the error context
func (eb *ErrorBuilder) ModelContext(modelPath, modelVersion string) *ErrorBuilder {
	eb.Context("model_path", modelPath)
	if modelVersion != "" {
		eb.Context("model_version", modelVersion)
	}
	return eb
}

// FileContext adds file path and size to the error context
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	eb.Context("file_path", filePath)
	if fileSize >= 0 {
		eb.Context("file_size_bytes", fileSize)
	}
	return eb
}

// NetworkContext adds URL and timeout to the error context
func (eb *ErrorBuilder) NetworkContext(url string, timeout time.Duration) *ErrorBuilder {
	eb.Context("url", url)
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Timing adds an operation name and duration to the error context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the EnhancedError and triggers optional telemetry reporting
func (eb *ErrorBuilder) Build() *EnhancedError {
	if !hasActiveReporting.Load() {
		ee := &EnhancedError{
			Err:       eb.err,
			component: eb.component,
			Category:  eb.category,
			Priority:  eb.priority,
			Context:   eb.context,
			Timestamp: time.Now(),
			detected:  eb.component != "",
		}
		if ee.component == "" {
			ee.component = ComponentUnknown
			ee.detected = true
		}
		if ee.Category == "" {
			ee.Category = CategoryGeneric
		}
		return ee
	}

	if eb.component == "" {
		eb.component = detectComponent()
	}
	if eb.category == "" {
		eb.category = CategoryGeneric
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		detected:  true,
	}

	reportToTelemetry(ee)

	return ee
}

// Telemetry integration. The telemetry package registers a reporter at init
// time; until then Build takes the fast path and skips component detection.
var (
	hasActiveReporting atomic.Bool
	reporterMu         sync.RWMutex
	telemetryReporter  func(*EnhancedError)
)

// SetTelemetryReporter installs the reporting hook. Passing nil disables
// reporting and restores the fast build path.
func SetTelemetryReporter(fn func(*EnhancedError)) {
	reporterMu.Lock()
	telemetryReporter = fn
	reporterMu.Unlock()
	hasActiveReporting.Store(fn != nil)
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	fn := telemetryReporter
	reporterMu.RUnlock()
	if fn == nil || ee.IsReported() {
		return
	}
	fn(ee)
	ee.MarkReported()
}

// Component registry for component detection from caller packages
var (
	componentRegistry = make(map[string]string)
	registryMutex     sync.RWMutex
)

// RegisterComponent registers a package path pattern with a component name
func RegisterComponent(packagePattern, componentName string) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	componentRegistry[packagePattern] = componentName
}

func init() {
	RegisterComponent("paddynet", "paddynet")
	RegisterComponent("localizer", "localizer")
	RegisterComponent("frame", "frame")
	RegisterComponent("imagery", "imagery")
	RegisterComponent("datastore", "datastore")
	RegisterComponent("diskmanager", "diskmanager")
	RegisterComponent("export", "export")
	RegisterComponent("mqtt", "mqtt")
	RegisterComponent("catalog", "catalog")
	RegisterComponent("notification", "notification")
	RegisterComponent("conf", "configuration")
	RegisterComponent("telemetry", "telemetry")
	RegisterComponent("api", "api")
	RegisterComponent("analysis", "analysis")
	RegisterComponent("analysis/processor", "analysis.processor")
	RegisterComponent("analysis/scanner", "analysis.scanner")
}

// detectComponent walks a few frames up the stack and matches the caller's
// package path against the registry. Longest pattern wins so subpackages
// take precedence over their parents.
func detectComponent() string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return ComponentUnknown
	}
	frames := runtime.CallersFrames(pcs[:n])

	registryMutex.RLock()
	defer registryMutex.RUnlock()

	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, "/internal/errors.") {
			if !more {
				break
			}
			continue
		}
		best, bestLen := "", 0
		for pattern, name := range componentRegistry {
			if strings.Contains(frame.Function, "/internal/"+pattern+".") && len(pattern) > bestLen {
				best, bestLen = name, len(pattern)
			}
		}
		if best != "" {
			return best
		}
		if !more {
			break
		}
	}
	return ComponentUnknown
}

// Standard library passthroughs so callers need a single errors import.

// NewStd creates a plain error without enhancement
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps stderrors.Join
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// HasCategory reports whether err carries the given category anywhere in
// its chain.
func HasCategory(err error, category ErrorCategory) bool {
	for err != nil {
		var ee *EnhancedError
		if stderrors.As(err, &ee) {
			return ee.Category == category
		}
		var ce CategorizedError
		if stderrors.As(err, &ce) {
			return ce.ErrorCategory() == category
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// CategoryOf returns the category carried by err, or CategoryGeneric
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	var ce CategorizedError
	if stderrors.As(err, &ce) {
		return ce.ErrorCategory()
	}
	return CategoryGeneric
}

// Predicates matching the pipeline error taxonomy.

func IsCaptureUnavailable(err error) bool {
	return HasCategory(err, CategoryCaptureUnavailable)
}

func IsCaptureFailed(err error) bool {
	return HasCategory(err, CategoryCaptureFailed)
}

func IsPreprocessFailed(err error) bool {
	return HasCategory(err, CategoryPreprocess)
}

func IsLocalizerUnavailable(err error) bool {
	return HasCategory(err, CategoryLocalizer)
}

// IsClassifierUnavailable matches model lifecycle and inference failures.
func IsClassifierUnavailable(err error) bool {
	switch CategoryOf(err) {
	case CategoryModelInit, CategoryModelLoad, CategoryLabelLoad, CategoryInference:
		return true
	default:
		return false
	}
}

func IsReconcileInputInvalid(err error) bool {
	return HasCategory(err, CategoryReconcileInput)
}

func IsNotFound(err error) bool {
	return HasCategory(err, CategoryNotFound)
}
