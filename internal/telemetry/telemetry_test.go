package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
)

func TestInitDisabledIsNoop(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = false

	require.NoError(t, Init(settings))
	assert.False(t, Enabled())
}

func TestInitRequiresDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = ""

	err := Init(settings)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
	assert.False(t, Enabled())
}

func TestCaptureIsNoopBeforeInit(t *testing.T) {
	require.False(t, Enabled())

	CaptureError(errors.NewStd("model load failed"), "paddynet")
	CaptureMessage("scan loop started", sentry.LevelInfo, "scanner")
	Flush(10 * time.Millisecond)
}

func TestReportableCategoryFilter(t *testing.T) {
	reportable := []errors.ErrorCategory{
		errors.CategoryModelLoad,
		errors.CategoryInference,
		errors.CategoryDatabase,
		errors.CategoryMQTTConnection,
	}
	local := []errors.ErrorCategory{
		errors.CategoryCaptureUnavailable,
		errors.CategoryCaptureFailed,
		errors.CategoryNotFound,
		errors.CategoryValidation,
		errors.CategoryTimeout,
	}

	for _, category := range reportable {
		assert.True(t, reportableCategories[category], "category %s should report", category)
	}
	for _, category := range local {
		assert.False(t, reportableCategories[category], "category %s should stay local", category)
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	err := errors.NewStd("interpreter allocation failed")

	title := generateErrorTitle(err, "paddynet")
	assert.Equal(t, "Paddynet: interpreter allocation failed", title)

	title = generateErrorTitle(err, errors.ComponentUnknown)
	assert.Equal(t, "interpreter allocation failed", title)
}

func TestGenerateErrorTitleTruncatesLongMessages(t *testing.T) {
	err := errors.NewStd(strings.Repeat("x", 100))

	title := generateErrorTitle(err, "")
	assert.Len(t, title, 63)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestTitleCaseComponent(t *testing.T) {
	assert.Equal(t, "MQTT Client", titleCaseComponent("mqtt_client"))
	assert.Equal(t, "Datastore", titleCaseComponent("datastore"))
	assert.Equal(t, "API", titleCaseComponent("api"))
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.User = sentry.User{ID: "farmer-1", IPAddress: "10.0.0.5"}
	event.ServerName = "paddy-station-1"
	event.Contexts["device"] = sentry.Context{"name": "rpi4"}
	event.Contexts["os"] = sentry.Context{"name": "linux"}
	event.Contexts["trace"] = sentry.Context{"trace_id": "abc"}
	event.Tags["hostname"] = "paddy-station-1"
	event.Tags["component"] = "paddynet"

	filtered := applyPrivacyFilters(event)

	assert.True(t, filtered.User.IsEmpty())
	assert.Empty(t, filtered.ServerName)
	assert.NotContains(t, filtered.Contexts, "device")
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "trace")
	assert.NotContains(t, filtered.Tags, "hostname")
	assert.Equal(t, "paddynet", filtered.Tags["component"])
}
