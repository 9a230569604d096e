// Package telemetry provides opt-in error reporting through Sentry.
// Nothing is sent unless sentry.enabled is set; events are stripped of
// user and host identifiers before leaving the box.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/logging"
)

var (
	logger          *slog.Logger
	closeLogger     func() error
	serviceLevelVar = new(slog.LevelVar)

	initialized atomic.Bool
)

func init() {
	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/telemetry.log", "telemetry", serviceLevelVar)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "telemetry")
		closeLogger = func() error { return nil }
	}
	serviceLevelVar.Set(slog.LevelInfo)
}

// reportableCategories lists the error categories worth a telemetry
// event. Routine capture hiccups and lookup misses stay local.
var reportableCategories = map[errors.ErrorCategory]bool{
	errors.CategoryModelInit:      true,
	errors.CategoryModelLoad:      true,
	errors.CategoryLabelLoad:      true,
	errors.CategoryInference:      true,
	errors.CategoryDatabase:       true,
	errors.CategoryDiskCleanup:    true,
	errors.CategoryMQTTConnection: true,
	errors.CategoryState:          true,
	errors.CategoryProcessing:     true,
}

// Init starts the Sentry client when telemetry is enabled and hooks
// error-builder reporting. Disabled telemetry is not an error.
func Init(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		logger.Info("telemetry disabled, errors stay local")
		return nil
	}

	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	environment := settings.Sentry.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		Debug:            false,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          fmt.Sprintf("palayguard@%s", settings.Version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("environment", environment).
			Build()
	}

	initialized.Store(true)
	errors.SetTelemetryReporter(reportEnhancedError)

	logger.Info("telemetry initialized",
		"environment", environment,
		"release", settings.Version)
	return nil
}

// Enabled reports whether the Sentry client is running.
func Enabled() bool {
	return initialized.Load()
}

// reportEnhancedError forwards built errors from the errors package,
// filtered to the categories worth reporting.
func reportEnhancedError(ee *errors.EnhancedError) {
	if !reportableCategories[ee.Category] {
		return
	}
	CaptureError(ee, ee.GetComponent())
}

// CaptureError sends one error event tagged with its component. No-op
// until Init has run with telemetry enabled.
func CaptureError(err error, component string) {
	if !initialized.Load() {
		return
	}

	title := generateErrorTitle(err, component)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetFingerprint([]string{title, component})

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = err.Error()
		event.Exception = []sentry.Exception{{
			Type:  title,
			Value: err.Error(),
		}}
		sentry.CaptureEvent(event)
	})

	logger.Debug("error event sent", "component", component, "title", title)
}

// CaptureMessage sends one message event. No-op until Init has run.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !initialized.Load() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(level)
		sentry.CaptureMessage(message)
	})
}

// Flush drains buffered events before shutdown.
func Flush(timeout time.Duration) {
	if !initialized.Load() {
		return
	}
	sentry.Flush(timeout)
}

// applyPrivacyFilters strips user and host identifiers from an event
// before it is sent.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// generateErrorTitle builds a readable exception title so Sentry groups
// by component and failure kind instead of by Go error type.
func generateErrorTitle(err error, component string) string {
	msg := err.Error()
	if len(msg) > 60 {
		msg = msg[:60] + "..."
	}
	if component != "" && component != errors.ComponentUnknown {
		return fmt.Sprintf("%s: %s", titleCaseComponent(component), msg)
	}
	return msg
}

// titleCaseComponent renders component names for event titles,
// expanding the common protocol abbreviations.
func titleCaseComponent(component string) string {
	component = strings.ReplaceAll(component, "mqtt", "MQTT ")
	component = strings.ReplaceAll(component, "api", "API ")
	component = strings.ReplaceAll(component, "_", " ")

	words := strings.Fields(component)
	for i, word := range words {
		if strings.ToUpper(word) == word {
			continue
		}
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
