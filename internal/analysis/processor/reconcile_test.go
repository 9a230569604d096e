package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

func reconcileSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Detection.MinConfidence = 90
	settings.Detection.MinMargin = 10
	settings.Detection.NoPestLabel = "no pest"
	return settings
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)
	return cat
}

func ls(label string, score float32) paddynet.LabelScore {
	return paddynet.LabelScore{Label: label, Score: score}
}

func verdictOf(raw []float32, ranked ...paddynet.LabelScore) *paddynet.ClassificationVerdict {
	return &paddynet.ClassificationVerdict{Ranked: ranked, RawScores: raw}
}

func TestReconcileAcceptsConfidentVerdict(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	regions := []localizer.Region{{X: 12, Y: 8, Width: 96, Height: 72, Score: 0.81}}
	v := verdictOf([]float32{0.02, 0.95, 0.01},
		ls("Rice Black Bug", 0.95), ls("No Pest Detected", 0.02))

	event, err := engine.Reconcile(v, regions)
	require.NoError(t, err)

	assert.True(t, event.Detected)
	assert.Equal(t, "Rice Black Bug", event.PestType)
	assert.Equal(t, 95, event.Confidence)
	assert.Equal(t, 93, event.Margin)
	assert.Equal(t, "Scotinophara coarctata", event.ScientificName)
	require.NotNil(t, event.Species)
	assert.Equal(t, catalog.DangerHigh, event.Species.DangerLevel)
	assert.Equal(t, regions, event.Regions)
	assert.Equal(t, v.Ranked, event.Rankings)
	assert.NotEmpty(t, event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestReconcileSplitsTreatmentIntoRecommendations(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0.95, 0.02},
		ls("Rice Black Bug", 0.95), ls("No Pest Detected", 0.02))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	require.Len(t, event.Recommendations, 3)
	assert.Equal(t, "Use light traps during mass flights to capture adult bugs.", event.Recommendations[0])
	assert.Equal(t, "Apply the recommended insecticide at the base of tillers in the late afternoon.", event.Recommendations[1])
	assert.Equal(t, "Drain the field for three to four days to disrupt breeding sites.", event.Recommendations[2])
}

func TestReconcileRejectsNarrowMargin(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0.55, 0.50},
		ls("Rice Black Bug", 0.55), ls("Golden Apple Snail", 0.50))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.False(t, event.Detected)
	assert.Equal(t, "Rice Black Bug", event.PestType)
	assert.Equal(t, 55, event.Confidence)
	assert.Equal(t, 5, event.Margin)
	assert.Nil(t, event.Species)
	assert.Empty(t, event.ScientificName)
	assert.Equal(t, []string{"Continue monitoring."}, event.Recommendations)
}

func TestReconcileRejectsNoPestSentinel(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0.97, 0.02, 0.01},
		ls("No Pest Detected", 0.97), ls("Rice Black Bug", 0.02))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.False(t, event.Detected, "sentinel label must reject even at high confidence")
	assert.Equal(t, "No Pest Detected", event.PestType)
	assert.Equal(t, 97, event.Confidence)
	assert.Equal(t, []string{"Continue monitoring."}, event.Recommendations)
}

func TestReconcileRejectsZeroMargin(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0.95, 0.95},
		ls("Rice Black Bug", 0.95), ls("Golden Apple Snail", 0.95))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.False(t, event.Detected)
	assert.Equal(t, 95, event.Confidence)
	assert.Equal(t, 0, event.Margin)
}

func TestReconcileAllZeroScores(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0, 0, 0}, ls("Rice Black Bug", 0))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.False(t, event.Detected)
	assert.Equal(t, 0, event.Confidence)
	assert.Equal(t, 0, event.Margin)
}

func TestReconcileInputInvalid(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), nil)

	tests := []struct {
		name    string
		verdict *paddynet.ClassificationVerdict
	}{
		{name: "nil verdict", verdict: nil},
		{name: "empty raw scores", verdict: verdictOf(nil, ls("Rice Black Bug", 0.9))},
		{name: "single raw score", verdict: verdictOf([]float32{0.9}, ls("Rice Black Bug", 0.9))},
		{name: "no ranked labels", verdict: verdictOf([]float32{0.9, 0.1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := engine.Reconcile(tt.verdict, nil)
			require.Error(t, err)
			assert.Nil(t, event)
			assert.True(t, errors.HasCategory(err, errors.CategoryReconcileInput))
		})
	}
}

func TestReconcileCatalogMissUsesGenericRecommendations(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))
	v := verdictOf([]float32{0.96, 0.01},
		ls("Unknown Weevil", 0.96), ls("No Pest Detected", 0.01))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.True(t, event.Detected)
	assert.Nil(t, event.Species)
	assert.Empty(t, event.ScientificName)
	assert.Equal(t, []string{
		"Apply appropriate treatment for the detected pest.",
		"Monitor affected areas closely.",
	}, event.Recommendations)
}

func TestReconcileNilCatalog(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), nil)
	v := verdictOf([]float32{0.95, 0.02},
		ls("Rice Black Bug", 0.95), ls("No Pest Detected", 0.02))

	event, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.True(t, event.Detected)
	assert.Nil(t, event.Species)
	assert.Len(t, event.Recommendations, 2)
}

func TestReconcileDefaultThresholds(t *testing.T) {
	tests := []struct {
		name     string
		settings *conf.Settings
	}{
		{name: "nil settings", settings: nil},
		{name: "zero settings", settings: &conf.Settings{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewReconciliationEngine(tt.settings, nil)

			belowConfidence, err := engine.Reconcile(verdictOf([]float32{0.89, 0.01},
				ls("Rice Black Bug", 0.89)), nil)
			require.NoError(t, err)
			assert.False(t, belowConfidence.Detected)

			belowMargin, err := engine.Reconcile(verdictOf([]float32{0.95, 0.86},
				ls("Rice Black Bug", 0.95)), nil)
			require.NoError(t, err)
			assert.False(t, belowMargin.Detected)
			assert.Equal(t, 9, belowMargin.Margin)

			accepted, err := engine.Reconcile(verdictOf([]float32{0.95, 0.02},
				ls("Rice Black Bug", 0.95)), nil)
			require.NoError(t, err)
			assert.True(t, accepted.Detected)
		})
	}
}

func TestReconcileCustomThresholds(t *testing.T) {
	settings := reconcileSettings()
	settings.Detection.MinConfidence = 50
	settings.Detection.MinMargin = 3
	engine := NewReconciliationEngine(settings, nil)

	event, err := engine.Reconcile(verdictOf([]float32{0.55, 0.50},
		ls("Rice Black Bug", 0.55)), nil)
	require.NoError(t, err)

	assert.True(t, event.Detected)
}

func TestReconcileCustomSentinel(t *testing.T) {
	settings := reconcileSettings()
	settings.Detection.NoPestLabel = "empty scene"
	engine := NewReconciliationEngine(settings, nil)

	event, err := engine.Reconcile(verdictOf([]float32{0.99, 0.01},
		ls("Empty Scene", 0.99)), nil)
	require.NoError(t, err)

	assert.False(t, event.Detected)
}

func TestReconcileAssignsUniqueCorrelationIDs(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), nil)
	v := verdictOf([]float32{0.95, 0.02}, ls("Rice Black Bug", 0.95))

	first, err := engine.Reconcile(v, nil)
	require.NoError(t, err)
	second, err := engine.Reconcile(v, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestNoDetectionEvent(t *testing.T) {
	engine := NewReconciliationEngine(reconcileSettings(), testCatalog(t))

	event := engine.NoDetectionEvent()

	assert.False(t, event.Detected)
	assert.Equal(t, "No Pest Detected", event.PestType)
	assert.Empty(t, event.Regions)
	assert.Equal(t, []string{"Continue monitoring."}, event.Recommendations)
	assert.NotEmpty(t, event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestTopTwoScores(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float32
		wantMax    float32
		wantSecond float32
	}{
		{name: "descending", scores: []float32{0.9, 0.05, 0.01}, wantMax: 0.9, wantSecond: 0.05},
		{name: "max in middle", scores: []float32{0.1, 0.8, 0.3}, wantMax: 0.8, wantSecond: 0.3},
		{name: "max last", scores: []float32{0.1, 0.2, 0.7}, wantMax: 0.7, wantSecond: 0.2},
		{name: "tied max", scores: []float32{0.5, 0.5}, wantMax: 0.5, wantSecond: 0.5},
		{name: "all zero", scores: []float32{0, 0, 0}, wantMax: 0, wantSecond: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxScore, secondScore := topTwoScores(tt.scores)
			assert.InDelta(t, tt.wantMax, maxScore, 1e-6)
			assert.InDelta(t, tt.wantSecond, secondScore, 1e-6)
		})
	}
}

func TestSplitTreatment(t *testing.T) {
	tests := []struct {
		name      string
		treatment string
		want      []string
	}{
		{
			name:      "multiple sentences",
			treatment: "Drain the field. Use light traps at night.",
			want:      []string{"Drain the field.", "Use light traps at night."},
		},
		{
			name:      "decimal dose survives",
			treatment: "Apply 2.5 ml per liter. Repeat weekly.",
			want:      []string{"Apply 2.5 ml per liter.", "Repeat weekly."},
		},
		{
			name:      "single sentence without period",
			treatment: "Keep fields dry",
			want:      []string{"Keep fields dry."},
		},
		{
			name:      "empty",
			treatment: "",
			want:      nil,
		},
		{
			name:      "extra whitespace",
			treatment: "  Crush egg masses.   Flood the paddy. ",
			want:      []string{"Crush egg masses.", "Flood the paddy."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitTreatment(tt.treatment))
		})
	}
}
