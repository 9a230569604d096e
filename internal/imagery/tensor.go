// Package imagery converts captured frames into the normalized float32
// tensors the classifier consumes.
package imagery

import (
	"sync"
	"sync/atomic"
)

// DefaultTargetSize is the classifier's input edge length in pixels.
const DefaultTargetSize = 224

const channels = 3

// Tensor is a dense NHWC float32 buffer [1, H, W, 3] with values in
// [-1, 1]. Tensors are manually managed: Close returns the buffer to the
// pool. Closing twice is a no-op; Data returns nil after Close.
type Tensor struct {
	data   []float32
	Width  int
	Height int
	closed atomic.Bool
}

// Default-size buffers are recycled; ad hoc sizes are left to the GC.
var tensorPool = sync.Pool{
	New: func() any {
		buf := make([]float32, DefaultTargetSize*DefaultTargetSize*channels)
		return &buf
	},
}

func newTensor(size int) *Tensor {
	t := &Tensor{Width: size, Height: size}
	if size == DefaultTargetSize {
		t.data = *tensorPool.Get().(*[]float32)
	} else {
		t.data = make([]float32, size*size*channels)
	}
	return t
}

// Data returns the tensor buffer, or nil after Close.
func (t *Tensor) Data() []float32 {
	if t.closed.Load() {
		return nil
	}
	return t.data
}

// Close releases the buffer back to the pool. Safe to call more than once.
func (t *Tensor) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	if len(t.data) == DefaultTargetSize*DefaultTargetSize*channels {
		buf := t.data
		tensorPool.Put(&buf)
	}
	t.data = nil
}

// Closed reports whether the tensor has been released.
func (t *Tensor) Closed() bool {
	return t.closed.Load()
}
