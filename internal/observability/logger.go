package observability

import (
	"io"
	"log/slog"

	"github.com/palayguard/palayguard-go/internal/logging"
)

var logger *slog.Logger

func init() {
	var err error
	logger, _, err = logging.NewFileLogger("logs/observability.log", "observability", slog.LevelInfo)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "observability")
	}
}
