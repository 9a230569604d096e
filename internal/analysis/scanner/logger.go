package scanner

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/palayguard/palayguard-go/internal/logging"
)

// Package-level logger specific to the scanner service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "scanner.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "scanner", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize scanner file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "scanner")
		closeLogger = func() error { return nil }
	}
}
