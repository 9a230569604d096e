package frame

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/errors"
)

// ErrNoNewFrame is returned when the watch directory holds nothing newer
// than the last served file. The scan loop treats it as an empty tick.
var ErrNoNewFrame = errors.NewStd("no new frame in watch directory")

// DirectorySource serves the newest image dropped into a watch directory,
// for deployments where a separate camera process writes stills to disk.
type DirectorySource struct {
	dir string

	mu         sync.Mutex
	lastServed time.Time
	lastName   string
}

// NewDirectorySource creates a source over the configured watch directory.
func NewDirectorySource(settings *conf.Settings) *DirectorySource {
	return &DirectorySource{dir: settings.Realtime.Source.Path}
}

// Name implements Source.
func (s *DirectorySource) Name() string {
	return s.dir
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Capture returns the newest unseen image file. A missing directory is
// capture-unavailable; an empty tick wraps ErrNoNewFrame.
func (s *DirectorySource) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCancellation).
			Build()
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureUnavailable).
			Context("directory", s.dir).
			Build()
	}

	var newestName string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newestName = entry.Name()
		}
	}

	s.mu.Lock()
	seen := newestName == "" ||
		(!newestTime.After(s.lastServed) && newestName == s.lastName) ||
		newestTime.Before(s.lastServed)
	if !seen {
		s.lastServed = newestTime
		s.lastName = newestName
	}
	s.mu.Unlock()

	if seen {
		return nil, errors.New(ErrNoNewFrame).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			Context("directory", s.dir).
			Build()
	}

	path := filepath.Join(s.dir, newestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			FileContext(path, -1).
			Build()
	}

	frm, err := NewFrame(data, path)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			FileContext(path, int64(len(data))).
			Build()
	}

	logger.Debug("captured directory frame", "path", path,
		"width", frm.Width, "height", frm.Height)
	return frm, nil
}
