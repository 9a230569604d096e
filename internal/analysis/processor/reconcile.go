package processor

import (
	"math"
	"strings"
	"time"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// Decision thresholds applied when the configuration leaves them unset.
const (
	defaultMinConfidence = 90
	defaultMinMargin     = 10
	defaultNoPestLabel   = "no pest"
)

// NoDetectionLabel is the pest type reported for frames in which the
// localizer found no qualifying region, so the classifier never ran.
const NoDetectionLabel = "No Pest Detected"

var (
	rejectedRecommendations = []string{"Continue monitoring."}

	genericRecommendations = []string{
		"Apply appropriate treatment for the detected pest.",
		"Monitor affected areas closely.",
	}
)

// ReconciliationEngine folds raw classification verdicts into detection
// events. The decision is two gated thresholds on the raw score vector: the
// winning score must clear the confidence floor and must beat the runner-up
// by the margin floor. A winner matching the no-pest sentinel is always
// rejected, whatever its score.
type ReconciliationEngine struct {
	settings *conf.Settings
	catalog  *catalog.Catalog
}

// NewReconciliationEngine returns an engine bound to the given settings and
// species catalog. The catalog may be nil; detections then carry the generic
// recommendations.
func NewReconciliationEngine(settings *conf.Settings, cat *catalog.Catalog) *ReconciliationEngine {
	return &ReconciliationEngine{settings: settings, catalog: cat}
}

// Reconcile turns one classification verdict into a detection event. The
// winning label comes from the ranked list while confidence and margin are
// computed from the untrimmed raw vector, so a top-k of one still yields a
// meaningful margin. Verdicts with fewer than two raw scores cannot be
// margin-checked and are returned as an error.
func (e *ReconciliationEngine) Reconcile(verdict *paddynet.ClassificationVerdict, regions []localizer.Region) (*DetectionEvent, error) {
	if verdict == nil {
		return nil, errors.Newf("reconciliation requires a classification verdict").
			Component("processor").
			Category(errors.CategoryReconcileInput).
			Build()
	}
	if len(verdict.RawScores) < 2 {
		return nil, errors.Newf("reconciliation requires at least two raw scores, got %d", len(verdict.RawScores)).
			Component("processor").
			Category(errors.CategoryReconcileInput).
			Context("raw_scores", len(verdict.RawScores)).
			Build()
	}
	if len(verdict.Ranked) == 0 {
		return nil, errors.Newf("verdict carries no ranked labels").
			Component("processor").
			Category(errors.CategoryReconcileInput).
			Build()
	}

	maxScore, secondScore := topTwoScores(verdict.RawScores)
	confidence := int(math.Round(float64(maxScore) * 100))
	margin := confidence - int(math.Round(float64(secondScore)*100))
	winning := verdict.Ranked[0].Label

	event := &DetectionEvent{
		CorrelationID: newCorrelationID(),
		PestType:      winning,
		Confidence:    confidence,
		Margin:        margin,
		Regions:       regions,
		Rankings:      verdict.Ranked,
		Timestamp:     time.Now(),
	}

	switch {
	case containsNoPest(e.settings, winning):
		event.Detected = false
	case confidence < minConfidence(e.settings):
		event.Detected = false
	case margin < minMargin(e.settings):
		event.Detected = false
	default:
		event.Detected = true
	}

	if !event.Detected {
		event.Recommendations = append([]string(nil), rejectedRecommendations...)
		logger.Debug("verdict rejected",
			"detection_id", event.CorrelationID,
			"pest_type", winning,
			"confidence", confidence,
			"margin", margin)
		return event, nil
	}

	if e.catalog != nil {
		if sp := e.catalog.Lookup(winning); sp != nil {
			event.Species = sp
			event.ScientificName = sp.ScientificName
			event.Recommendations = splitTreatment(sp.Treatment)
		}
	}
	if len(event.Recommendations) == 0 {
		event.Recommendations = append([]string(nil), genericRecommendations...)
	}
	return event, nil
}

// NoDetectionEvent builds the event emitted for a frame without qualifying
// regions. Scores are absent because the classifier never ran.
func (e *ReconciliationEngine) NoDetectionEvent() *DetectionEvent {
	return &DetectionEvent{
		CorrelationID:   newCorrelationID(),
		Detected:        false,
		PestType:        NoDetectionLabel,
		Recommendations: append([]string(nil), rejectedRecommendations...),
		Timestamp:       time.Now(),
	}
}

// topTwoScores returns the largest and second largest values of the raw
// vector in one pass. Ties resolve to the earliest index, matching the
// classifier's ranking order.
func topTwoScores(scores []float32) (maxScore, secondScore float32) {
	maxIdx := 0
	for i, s := range scores {
		if s > scores[maxIdx] {
			maxIdx = i
		}
	}
	maxScore = scores[maxIdx]

	first := true
	for i, s := range scores {
		if i == maxIdx {
			continue
		}
		if first || s > secondScore {
			secondScore = s
			first = false
		}
	}
	return maxScore, secondScore
}

// splitTreatment breaks the catalog treatment text into one recommendation
// per sentence. Splitting on ". " keeps decimals like "2.5 ml" intact.
func splitTreatment(treatment string) []string {
	var out []string
	for _, part := range strings.Split(treatment, ". ") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "."))
		if part == "" {
			continue
		}
		out = append(out, part+".")
	}
	return out
}

func minConfidence(settings *conf.Settings) int {
	if settings != nil && settings.Detection.MinConfidence > 0 {
		return settings.Detection.MinConfidence
	}
	return defaultMinConfidence
}

func minMargin(settings *conf.Settings) int {
	if settings != nil && settings.Detection.MinMargin > 0 {
		return settings.Detection.MinMargin
	}
	return defaultMinMargin
}

func noPestSentinel(settings *conf.Settings) string {
	if settings != nil && settings.Detection.NoPestLabel != "" {
		return strings.ToLower(settings.Detection.NoPestLabel)
	}
	return defaultNoPestLabel
}

// containsNoPest reports whether the label matches the empty-scene sentinel.
func containsNoPest(settings *conf.Settings, label string) bool {
	return strings.Contains(strings.ToLower(label), noPestSentinel(settings))
}
