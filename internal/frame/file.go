package frame

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/palayguard/palayguard-go/internal/errors"
)

// FileSource serves a single image file exactly once, for one-shot
// analysis of a still.
type FileSource struct {
	path   string
	served atomic.Bool
}

// NewFileSource creates a source for one image file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return s.path
}

// Capture returns the file on the first call and reports exhaustion on
// every later call.
func (s *FileSource) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCancellation).
			Build()
	}

	if !s.served.CompareAndSwap(false, true) {
		return nil, errors.Newf("file source %s is exhausted", s.path).
			Component("frame").
			Category(errors.CategoryCaptureUnavailable).
			Build()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureUnavailable).
			FileContext(s.path, -1).
			Build()
	}

	frm, err := NewFrame(data, s.path)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryCaptureFailed).
			FileContext(s.path, int64(len(data))).
			Build()
	}
	return frm, nil
}
