// Package analysis wires the detection pipeline together for the two
// entry points the CLI exposes: the continuous realtime daemon and the
// one-shot image analysis.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/localizer"
	"github.com/palayguard/palayguard-go/internal/paddynet"
)

// pipeline bundles the stages shared by both entry points. close
// releases the model-backed stages.
type pipeline struct {
	catalog    *catalog.Catalog
	localizer  localizer.Localizer
	classifier *paddynet.PaddyNet
}

// buildPipeline assembles the catalog, localizer and classifier from
// settings. The classifier is constructed unloaded; the first frame
// with a qualifying region triggers its lazy load.
func buildPipeline(settings *conf.Settings) (*pipeline, error) {
	cat, err := catalog.New()
	if err != nil {
		return nil, fmt.Errorf("loading species catalog: %w", err)
	}

	loc, err := localizer.New(settings)
	if err != nil {
		return nil, fmt.Errorf("building localizer: %w", err)
	}

	return &pipeline{
		catalog:    cat,
		localizer:  loc,
		classifier: paddynet.New(settings),
	}, nil
}

func (p *pipeline) close() {
	if p.localizer != nil {
		if err := p.localizer.Close(); err != nil {
			fmt.Printf("⚠️  Error closing localizer: %v\n", err)
		}
	}
	if p.classifier != nil {
		p.classifier.Close()
	}
	if p.catalog != nil {
		_ = p.catalog.Close()
	}
}

// printEvent renders a detection event for the console entry points.
func printEvent(event *processor.DetectionEvent) {
	if event == nil {
		return
	}
	if !event.Detected {
		fmt.Printf("No pest detected (best guess %s at %d%%, margin %d)\n",
			event.PestType, event.Confidence, event.Margin)
		return
	}

	fmt.Printf("Detected %s with %d%% confidence (margin %d)\n",
		event.PestType, event.Confidence, event.Margin)
	if event.ScientificName != "" {
		fmt.Printf("  Species: %s\n", event.ScientificName)
	}
	if level := event.DangerLevel(); level != "" {
		fmt.Printf("  Danger level: %s\n", level)
	}
	for i, rec := range event.Recommendations {
		fmt.Printf("  %d. %s\n", i+1, rec)
	}
}

// runOnceTimeout bounds a single-shot analysis end to end.
const runOnceTimeout = 60 * time.Second

func singleShotContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), runOnceTimeout)
}
