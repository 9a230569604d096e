// Package frame acquires camera frames for the detection pipeline. A
// source yields one encoded frame per capture; the pipeline owns the
// frame for the rest of the iteration and must close it.
package frame

import (
	"bytes"
	"image"
	"sync/atomic"
	"time"

	// Register decoders for dimension probing.
	_ "image/jpeg"
	_ "image/png"
)

// Frame is one captured image. The pixel data stays encoded; dimensions
// are probed from the header at capture time. Close releases the buffer,
// after which Data returns nil. Closing twice is a no-op.
type Frame struct {
	data      []byte
	Width     int
	Height    int
	Source    string
	Timestamp time.Time
	closed    atomic.Bool
}

// NewFrame wraps encoded image bytes in a Frame, probing dimensions from
// the header without a full pixel decode.
func NewFrame(data []byte, source string) (*Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Frame{
		data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Source:    source,
		Timestamp: time.Now(),
	}, nil
}

// Data returns the encoded image bytes, or nil after Close.
func (f *Frame) Data() []byte {
	if f.closed.Load() {
		return nil
	}
	return f.data
}

// Len returns the encoded size in bytes, 0 after Close.
func (f *Frame) Len() int {
	return len(f.Data())
}

// Close releases the frame buffer. Safe to call more than once.
func (f *Frame) Close() {
	if f.closed.CompareAndSwap(false, true) {
		f.data = nil
	}
}

// Closed reports whether the frame has been released.
func (f *Frame) Closed() bool {
	return f.closed.Load()
}
