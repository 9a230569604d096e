// Package localizer implements the coarse region-proposal stage of the
// detection pipeline. A Localizer looks at a whole frame and suggests
// zero or more axis-aligned regions worth classifying; it never decides
// whether a pest is present, that is the classifier's and the
// reconciliation engine's job.
package localizer

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/logging"
)

// Package-level logger specific to the localizer service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "localizer.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "localizer", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize localizer file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "localizer")
		closeLogger = func() error { return nil }
	}
}

// Localizer proposes candidate pest regions in a frame.
//
// DetectRegions returns every region above the strategy's own score
// floor; the acceptance gate that decides which regions reach the
// classifier belongs to the scan pipeline, not to implementations.
// Zero regions with a nil error means "nothing plausible here" and is
// not a failure.
type Localizer interface {
	// Name identifies the strategy for logs and metrics.
	Name() string

	// DetectRegions proposes regions in top-left pixel coordinates.
	DetectRegions(ctx context.Context, frm *frame.Frame) ([]Region, error)

	// Close releases any model or connection the strategy holds.
	Close() error
}

// New builds the Localizer selected by localizer.strategy.
func New(settings *conf.Settings) (Localizer, error) {
	switch settings.Localizer.Strategy {
	case "remote":
		return NewRemoteDetector(settings)
	case "local":
		return NewLocalDetector(settings)
	case "none":
		return NewPassthrough(), nil
	default:
		return nil, errors.New(fmt.Errorf("unknown localizer strategy: %s", settings.Localizer.Strategy)).
			Component("localizer").
			Category(errors.CategoryConfiguration).
			Context("strategy", settings.Localizer.Strategy).
			Build()
	}
}
