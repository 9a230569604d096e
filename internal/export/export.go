// Package export writes detection snapshots under the clips directory.
// File names carry pest type, confidence and capture time so the
// retention sweep can work from names alone.
package export

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/frame"
	"github.com/palayguard/palayguard-go/internal/logging"
)

var (
	logger          *slog.Logger
	closeLogger     func() error
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/export.log", "export", serviceLevelVar)
	if err != nil || logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil)).With("service", "export")
		closeLogger = func() error { return nil }
	}
	serviceLevelVar.Set(slog.LevelInfo)
}

// SaveSnapshot writes the frame's encoded bytes to the clips directory
// and returns the path. The frame stays open; the caller still owns it.
func SaveSnapshot(settings *conf.Settings, frm *frame.Frame, pestType string, confidence int) (string, error) {
	data := frm.Data()
	if len(data) == 0 {
		return "", errors.Newf("cannot export a closed frame").
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryValidation).
			Context("source", frm.Source).
			Build()
	}

	var ext string
	switch format {
	case "jpeg":
		ext = ".jpg"
	case "png":
		ext = ".png"
	default:
		return "", errors.Newf("unsupported snapshot format: %s", format).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}

	clipName := GenerateClipName(settings.Realtime.Export.Path, pestType, confidence, frm.Timestamp, ext)

	if err := os.MkdirAll(filepath.Dir(clipName), 0o755); err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", filepath.Dir(clipName)).
			Build()
	}

	if err := os.WriteFile(clipName, data, 0o644); err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", clipName).
			Build()
	}

	if settings.Realtime.Export.Debug {
		logger.Debug("snapshot saved",
			"path", clipName,
			"pest", pestType,
			"confidence", confidence,
			"bytes", len(data))
	}

	return clipName, nil
}

// GenerateClipName builds the snapshot path: year and month
// subdirectories under basePath, then pest type, confidence and a UTC
// timestamp joined by underscores.
func GenerateClipName(basePath, pestType string, confidence int, ts time.Time, ext string) string {
	formattedName := strings.ToLower(strings.ReplaceAll(pestType, " ", "_"))
	formattedConfidence := fmt.Sprintf("%dp", confidence)

	utc := ts.UTC()
	timestamp := utc.Format("20060102T150405Z")
	year := utc.Format("2006")
	month := utc.Format("01")

	fileName := fmt.Sprintf("%s_%s_%s%s", formattedName, formattedConfidence, timestamp, ext)
	return filepath.Join(basePath, year, month, fileName)
}
