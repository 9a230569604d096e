package frame

import (
	"context"
	"io"
	"log/slog"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/logging"
)

// Package-level logger following the service logger pattern.
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	serviceLevelVar.Set(slog.LevelInfo)

	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/frame.log", "frame", serviceLevelVar)
	if err != nil || logger == nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "frame")
		closeLogger = func() error { return nil }
	}
}

// Source yields frames for the scan pipeline. Capture is called from a
// single goroutine; implementations are not required to be safe for
// concurrent captures.
type Source interface {
	// Name identifies the source in events and logs.
	Name() string
	// Capture acquires one frame. The caller owns the returned frame
	// and must close it.
	Capture(ctx context.Context) (*Frame, error)
}

// New builds the frame source selected by the realtime source settings.
func New(settings *conf.Settings) (Source, error) {
	switch settings.Realtime.Source.Type {
	case "http":
		return NewHTTPSource(settings), nil
	case "directory":
		return NewDirectorySource(settings), nil
	default:
		return nil, errors.Newf("unknown frame source type %q", settings.Realtime.Source.Type).
			Component("frame").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
