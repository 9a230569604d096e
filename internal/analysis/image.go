package analysis

import (
	"fmt"
	"os"

	"github.com/palayguard/palayguard-go/internal/analysis/processor"
	"github.com/palayguard/palayguard-go/internal/analysis/scanner"
	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/frame"
)

// ImageAnalysis runs the detection pipeline once over a single image
// file and prints the outcome. Unlike continuous scanning, stage
// errors propagate to the caller so the CLI can surface them.
func ImageAnalysis(settings *conf.Settings, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("error accessing the image path: %w", err)
	}

	stages, err := buildPipeline(settings)
	if err != nil {
		return err
	}
	defer stages.close()

	proc := processor.New(settings, nil, stages.catalog, nil, nil)
	scn := scanner.New(settings, nil, stages.localizer, stages.classifier, proc.Engine, proc)

	ctx, cancel := singleShotContext()
	defer cancel()

	event, err := scn.RunOnceFrom(ctx, frame.NewFileSource(path))
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", path, err)
	}

	printEvent(event)
	return nil
}
