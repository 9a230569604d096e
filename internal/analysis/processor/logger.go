// Package processor logging infrastructure
package processor

import (
	"io"
	"log/slog"

	"github.com/palayguard/palayguard-go/internal/logging"
)

var (
	logger          *slog.Logger
	closeLogger     func() error
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/processor.log", "processor", serviceLevelVar)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "processor")
		closeLogger = func() error { return nil }
	}
	serviceLevelVar.Set(slog.LevelInfo)
}
