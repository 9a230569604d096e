package paddynet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/imagery"
)

// LabelScore pairs a model label with its score.
type LabelScore struct {
	Label string
	Score float32
}

// ClassificationVerdict is the outcome of one inference pass.
type ClassificationVerdict struct {
	// Ranked holds the top label scores in descending score order,
	// trimmed to paddynet.topk.
	Ranked []LabelScore

	// RawScores is the untrimmed output vector in model label order.
	// The reconciliation engine works on this, not on Ranked.
	RawScores []float32

	// Duration is the inference wall time.
	Duration time.Duration
}

// Best returns the top ranked result, or a zero LabelScore when the
// verdict is empty.
func (v *ClassificationVerdict) Best() LabelScore {
	if v == nil || len(v.Ranked) == 0 {
		return LabelScore{}
	}
	return v.Ranked[0]
}

// Classify runs one inference pass on a preprocessed tensor. The first
// call triggers the lazy model load; see ensureLoaded for the
// coalescing and sticky-failure behavior.
func (pn *PaddyNet) Classify(ctx context.Context, tensor *imagery.Tensor) (*ClassificationVerdict, error) {
	inf, labels, err := pn.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	if tensor == nil || tensor.Closed() {
		return nil, errors.New(fmt.Errorf("tensor has been released")).
			Component("paddynet").
			Category(errors.CategoryInference).
			Build()
	}

	start := time.Now()
	pn.mu.Lock()
	raw, err := inf.Invoke(tensor.Data())
	pn.mu.Unlock()
	elapsed := time.Since(start)

	if err != nil {
		if m := getMetrics(); m != nil {
			m.IncrementClassificationErrors()
		}
		return nil, errors.New(err).
			Component("paddynet").
			Category(errors.CategoryInference).
			Build()
	}

	if len(raw) != len(labels) {
		if m := getMetrics(); m != nil {
			m.IncrementClassificationErrors()
		}
		return nil, errors.New(fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(raw))).
			Component("paddynet").
			Category(errors.CategoryInference).
			Context("label_count", len(labels)).
			Context("output_size", len(raw)).
			Build()
	}

	ranked := make([]LabelScore, len(labels))
	for i, label := range labels {
		ranked[i] = LabelScore{Label: label, Score: raw[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	topK := pn.settings.PaddyNet.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	if m := getMetrics(); m != nil {
		m.IncrementClassifications()
		m.RecordClassificationDuration(elapsed.Seconds())
	}

	if pn.settings.PaddyNet.Debug {
		best := ranked[0]
		logger.Debug("Classification complete",
			"best_label", best.Label,
			"best_score", best.Score,
			"duration_ms", elapsed.Milliseconds())
	}

	return &ClassificationVerdict{
		Ranked:    ranked,
		RawScores: raw,
		Duration:  elapsed,
	}, nil
}
