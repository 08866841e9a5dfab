package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/jobala/petrocore/storage/disk"
)

// frame is one slot of the buffer pool: a fixed-size byte buffer plus the
// bookkeeping (pin count, dirty flag, resident page id) and the per-frame
// read/write latch that page guards acquire. Invariant: if
// pageID != disk.InvalidPageID the owning BufferpoolManager's page table
// maps that id back to this frame's id, and vice versa.
type frame struct {
	mu     sync.RWMutex
	id     int
	data   []byte
	pins   atomic.Int32
	dirty  bool
	pageID int64
}

func newFrame(id int) *frame {
	return &frame{
		id:     id,
		data:   make([]byte, disk.PageSize),
		pageID: disk.InvalidPageID,
	}
}

func (f *frame) pin() int32 {
	return f.pins.Add(1)
}

// unpin decrements the pin count and returns the new value. Callers must
// not call this on an already-zero count (see BufferpoolManager.UnpinPage).
func (f *frame) unpin() int32 {
	return f.pins.Add(-1)
}

func (f *frame) pinCount() int32 {
	return f.pins.Load()
}

// reset clears a frame's contents in preparation for a new resident page,
// but leaves pageID for the caller to set once it knows the new id.
func (f *frame) reset() {
	f.dirty = false
	f.pins.Store(0)
	for i := range f.data {
		f.data[i] = 0
	}
}
