package tensor

import (
	"sync/atomic"

	"github.com/veloxrt/velox/internal/pool"
)

// sharedBuffer is a reference-counted byte region allocated from a
// device pool. Adapted from the teacher's tensorBuffer (addRef/release
// around an atomic count); see SPEC_FULL.md §12. Tensor.shareView
// (Reshape and offset-only Slice) bumps the count just before it builds
// the new Tensor; Tensor.Clone deep-copies and takes no ref. The buffer
// returns to its pool when the count drops to zero.
type sharedBuffer struct {
	data     []byte
	device   Device
	align    int
	refCount atomic.Int32
}

func newSharedBuffer(device Device, size, align int) *sharedBuffer {
	b := &sharedBuffer{
		data:   pool.ForDevice(int(device)).Alloc(size, align),
		device: device,
		align:  align,
	}
	b.refCount.Store(1)
	return b
}

func (b *sharedBuffer) addRef() { b.refCount.Add(1) }

func (b *sharedBuffer) release() {
	if b.refCount.Add(-1) == 0 {
		pool.ForDevice(int(b.device)).Free(b.data)
		b.data = nil
	}
}

func (b *sharedBuffer) isUnique() bool { return b.refCount.Load() == 1 }
