package diskmanager

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
)

// maxDeletionsPerSweep caps how many snapshots one sweep removes, so a
// long-overdue cleanup cannot monopolise a slow SD card.
const maxDeletionsPerSweep = 1000

// Result summarises one retention sweep.
type Result struct {
	FilesDeleted int
	BytesFreed   int64
}

// AgeBasedCleanup removes snapshots older than the configured retention
// period while keeping at least MinClips per pest type per directory.
// The quit channel interrupts a sweep between file deletions.
func AgeBasedCleanup(quit <-chan struct{}, settings *conf.Settings) (Result, error) {
	start := time.Now()
	var result Result

	retention := settings.Realtime.Export.Retention
	baseDir := settings.Realtime.Export.Path
	debug := retention.Debug

	retentionHours, err := conf.ParseRetentionPeriod(retention.MaxAge)
	if err != nil {
		finishSweep("error", start, result)
		return result, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskCleanup).
			Context("max_age", retention.MaxAge).
			Build()
	}

	if _, statErr := os.Stat(baseDir); os.IsNotExist(statErr) {
		if debug {
			logger.Debug("clips directory does not exist, nothing to sweep", "base_dir", baseDir)
		}
		finishSweep("completed", start, result)
		return result, nil
	}

	if debug {
		logger.Debug("starting age-based cleanup",
			"base_dir", baseDir,
			"max_age", retention.MaxAge,
			"min_clips", retention.MinClips)
	}

	files, err := GetSnapshotFiles(baseDir, debug)
	if err != nil {
		finishSweep("error", start, result)
		return result, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryDiskCleanup).
			Context("base_dir", baseDir).
			Build()
	}

	pestSubDirCount := buildPestSubDirCountMap(files)
	expiration := time.Now().Add(-time.Duration(retentionHours) * time.Hour)

	for i := range files {
		select {
		case <-quit:
			logger.Info("cleanup interrupted by quit signal",
				"files_deleted", result.FilesDeleted)
			finishSweep("interrupted", start, result)
			return result, nil
		default:
		}

		file := &files[i]
		if !file.Timestamp.Before(expiration) {
			continue
		}

		subDir := filepath.Dir(file.Path)
		if pestSubDirCount[file.PestType][subDir] <= retention.MinClips {
			if debug {
				logger.Debug("pest snapshot count at minimum, keeping file",
					"pest", file.PestType,
					"directory", subDir,
					"min_clips", retention.MinClips)
			}
			continue
		}

		if removeErr := os.Remove(file.Path); removeErr != nil {
			logger.Error("failed to remove snapshot", "path", file.Path, "error", removeErr)
			finishSweep("error", start, result)
			return result, errors.New(removeErr).
				Component("diskmanager").
				Category(errors.CategoryDiskCleanup).
				Context("path", file.Path).
				Build()
		}

		pestSubDirCount[file.PestType][subDir]--
		result.FilesDeleted++
		result.BytesFreed += file.Size
		if debug {
			logger.Debug("snapshot deleted", "path", file.Path)
		}

		// Yield between deletions; sweeps share the box with capture.
		runtime.Gosched()

		if result.FilesDeleted >= maxDeletionsPerSweep {
			logger.Info("reached per-sweep deletion cap", "max", maxDeletionsPerSweep)
			break
		}
	}

	logger.Info("age retention sweep complete",
		"files_deleted", result.FilesDeleted,
		"bytes_freed", result.BytesFreed,
		"duration_ms", time.Since(start).Milliseconds())
	finishSweep("completed", start, result)
	return result, nil
}

// finishSweep records sweep metrics once per run.
func finishSweep(status string, start time.Time, result Result) {
	m := getMetrics()
	if m == nil {
		return
	}
	m.RecordSweep(status)
	m.RecordSweepDuration(time.Since(start).Seconds())
	if result.FilesDeleted > 0 {
		m.AddFilesDeleted(result.FilesDeleted)
		m.AddBytesFreed(result.BytesFreed)
	}
}
