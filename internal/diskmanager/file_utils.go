// Package diskmanager enforces snapshot retention for the clips
// directory. Snapshot files carry their pest type, confidence and
// capture time in the file name, so the sweep needs no database.
package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// allowedFileTypes is the list of file extensions eligible for cleanup.
// Everything else in the clips tree is left alone.
var allowedFileTypes = []string{".jpg", ".jpeg", ".png"}

// FileInfo holds the retention-relevant attributes of one snapshot,
// parsed from its file name.
type FileInfo struct {
	Path       string
	PestType   string
	Confidence int
	Timestamp  time.Time
	Size       int64
}

// GetSnapshotFiles returns the snapshots under baseDir and its
// subdirectories. Files whose names do not parse are skipped, unless
// every candidate fails to parse, which reports a broken clips tree.
func GetSnapshotFiles(baseDir string, debug bool) ([]FileInfo, error) {
	var files []FileInfo
	var candidates, parseFailures int

	err := filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !slices.Contains(allowedFileTypes, strings.ToLower(filepath.Ext(info.Name()))) {
			return nil
		}
		candidates++
		fileInfo, parseErr := parseFileInfo(path, info)
		if parseErr != nil {
			parseFailures++
			if debug {
				logger.Debug("skipping unparseable snapshot",
					"path", path,
					"error", parseErr)
			}
			return nil
		}
		files = append(files, fileInfo)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if candidates > 0 && len(files) == 0 {
		return nil, fmt.Errorf("failed to parse any files in %s (%d candidates)", baseDir, parseFailures)
	}
	return files, nil
}

// parseFileInfo extracts pest type, confidence and timestamp from a
// snapshot file name of the form pest_type_93p_20260102T150405Z.jpg.
func parseFileInfo(path string, info os.FileInfo) (FileInfo, error) {
	name := info.Name()
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(allowedFileTypes, ext) {
		return FileInfo{}, fmt.Errorf("file type not eligible for cleanup: %s", name)
	}

	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if len(parts) < 3 {
		return FileInfo{}, fmt.Errorf("invalid file name format: %s (has %d parts, expected at least 3)", name, len(parts))
	}

	confidence, err := strconv.Atoi(strings.TrimSuffix(parts[len(parts)-2], "p"))
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid confidence value in file %s: %w", name, err)
	}

	timestamp, err := time.Parse("20060102T150405Z", parts[len(parts)-1])
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid timestamp format in file %s: %w", name, err)
	}

	return FileInfo{
		Path:       path,
		PestType:   strings.Join(parts[:len(parts)-2], "_"),
		Confidence: confidence,
		Timestamp:  timestamp,
		Size:       info.Size(),
	}, nil
}

// buildPestSubDirCountMap tracks the number of snapshots per pest type
// per subdirectory, so the minimum-clips guard operates per month
// directory the way the exporter lays files out.
func buildPestSubDirCountMap(files []FileInfo) map[string]map[string]int {
	counts := make(map[string]map[string]int)
	for i := range files {
		subDir := filepath.Dir(files[i].Path)
		if _, ok := counts[files[i].PestType]; !ok {
			counts[files[i].PestType] = make(map[string]int)
		}
		counts[files[i].PestType][subDir]++
	}
	return counts
}
