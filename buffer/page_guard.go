package buffer

import "github.com/jobala/petrocore/storage/disk"

// BasicPageGuard is the base of the three scoped-acquisition guards: it
// owns one pin on a frame and releases it exactly once, on Drop. Guards
// are move-only — Go has no move constructors, so Move() plays that role
// explicitly: it hands the pin to a new value and leaves the receiver a
// no-op sink.
type BasicPageGuard struct {
	bpm   *BufferpoolManager
	frame *frame
	dirty bool
}

func newBasicPageGuard(bpm *BufferpoolManager, fr *frame, dirty bool) BasicPageGuard {
	return BasicPageGuard{bpm: bpm, frame: fr, dirty: dirty}
}

// PageID returns the resident page id, or disk.InvalidPageID for a
// dropped/moved-from guard.
func (g *BasicPageGuard) PageID() int64 {
	if g.frame == nil {
		return disk.InvalidPageID
	}
	return g.frame.pageID
}

// Data returns the frame's raw bytes.
func (g *BasicPageGuard) Data() []byte {
	return g.frame.data
}

// SetDirty overrides the dirty hint applied when the guard is dropped.
func (g *BasicPageGuard) SetDirty(dirty bool) {
	g.dirty = dirty
}

// Drop unpins the frame with the guard's dirty hint. Safe to call on an
// already-dropped or moved-from guard (no-op).
func (g *BasicPageGuard) Drop() {
	if g.bpm == nil || g.frame == nil {
		return
	}
	g.bpm.UnpinPage(g.frame.pageID, g.dirty)
	g.bpm = nil
	g.frame = nil
}

// Move transfers ownership of the pin to the returned value; the receiver
// becomes a no-op sink (Drop on it does nothing).
func (g *BasicPageGuard) Move() BasicPageGuard {
	moved := BasicPageGuard{bpm: g.bpm, frame: g.frame, dirty: g.dirty}
	g.bpm = nil
	g.frame = nil
	g.dirty = false
	return moved
}

// ReadPageGuard wraps a BasicPageGuard with the frame's read latch, held
// from construction until Drop.
type ReadPageGuard struct {
	basic BasicPageGuard
}

func newReadPageGuard(bpm *BufferpoolManager, fr *frame) ReadPageGuard {
	return ReadPageGuard{basic: newBasicPageGuard(bpm, fr, false)}
}

func (g *ReadPageGuard) PageID() int64 { return g.basic.PageID() }
func (g *ReadPageGuard) Data() []byte  { return g.basic.Data() }

// Drop releases the read latch before unpinning.
func (g *ReadPageGuard) Drop() {
	if g.basic.frame == nil {
		return
	}
	fr := g.basic.frame
	fr.mu.RUnlock()
	g.basic.Drop()
}

func (g *ReadPageGuard) Move() ReadPageGuard {
	return ReadPageGuard{basic: g.basic.Move()}
}

// WritePageGuard wraps a BasicPageGuard with the frame's write latch. Any
// code that takes a write guard is assumed to mutate the page, so the
// guard defaults to dirty=true; SetDirty(false) can override that for a
// write-latched-but-unmodified access.
type WritePageGuard struct {
	basic BasicPageGuard
}

func newWritePageGuard(bpm *BufferpoolManager, fr *frame) WritePageGuard {
	return WritePageGuard{basic: newBasicPageGuard(bpm, fr, true)}
}

func (g *WritePageGuard) PageID() int64   { return g.basic.PageID() }
func (g *WritePageGuard) Data() []byte    { return g.basic.Data() }
func (g *WritePageGuard) SetDirty(d bool) { g.basic.SetDirty(d) }

// Drop releases the write latch before unpinning.
func (g *WritePageGuard) Drop() {
	if g.basic.frame == nil {
		return
	}
	fr := g.basic.frame
	fr.mu.Unlock()
	g.basic.Drop()
}

func (g *WritePageGuard) Move() WritePageGuard {
	return WritePageGuard{basic: g.basic.Move()}
}
