// Package buffer implements the buffer pool manager: a bounded in-memory
// cache of fixed-size pages, backed by a disk scheduler and a clock
// replacer, mediating all access through pinned, latched page guards.
package buffer

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/jobala/petrocore/storage/disk"
	"github.com/jobala/petrocore/util"
)

// BufferpoolManager owns a fixed-size array of frames and mediates every
// access to them. All public operations are mutually exclusive under a
// single mutex; a single big latch is acceptable at this scale.
type BufferpoolManager struct {
	mu sync.Mutex

	frames    []*frame
	pageTable map[int64]int // page id -> frame id
	freeList  []int

	replacer  *ClockReplacer
	scheduler *disk.Scheduler

	nextPageID atomic.Int64
}

// NewBufferpoolManager allocates a pool of size frames in front of scheduler.
func NewBufferpoolManager(size int, scheduler *disk.Scheduler) *BufferpoolManager {
	frames := make([]*frame, size)
	freeList := make([]int, size)
	for i := 0; i < size; i++ {
		frames[i] = newFrame(i)
		freeList[i] = i
	}

	return &BufferpoolManager{
		frames:    frames,
		pageTable: make(map[int64]int),
		freeList:  freeList,
		replacer:  NewClockReplacer(size),
		scheduler: scheduler,
	}
}

// NewPage allocates a fresh page id, installs it in a frame (evicting if
// necessary), and returns it pinned.
func (b *BufferpoolManager) NewPage() (int64, *frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fr, err := b.victimLocked()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}

	pageID := b.nextPageID.Add(1)
	b.installLocked(fr, pageID)
	fr.reset()
	fr.pin()
	b.replacer.Pin(fr.id)

	return pageID, fr, nil
}

// FetchPage returns the frame holding pageID, fetching it from disk and
// evicting a victim if it isn't already resident.
func (b *BufferpoolManager) FetchPage(pageID int64) (*frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		fr := b.frames[frameID]
		fr.pin()
		b.replacer.Pin(fr.id)
		return fr, nil
	}

	fr, err := b.victimLocked()
	if err != nil {
		return nil, err
	}

	b.installLocked(fr, pageID)
	fr.reset()

	resp := <-b.scheduler.Schedule(disk.NewReadRequest(pageID))
	if resp.Err != nil {
		return nil, resp.Err
	}
	copy(fr.data, resp.Data)

	fr.pin()
	b.replacer.Pin(fr.id)
	return fr, nil
}

// FetchPageBasic fetches pageID and wraps it in a BasicPageGuard.
func (b *BufferpoolManager) FetchPageBasic(pageID int64) (*BasicPageGuard, error) {
	fr, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	guard := newBasicPageGuard(b, fr, false)
	return &guard, nil
}

// FetchPageRead fetches pageID and returns it under a read latch.
func (b *BufferpoolManager) FetchPageRead(pageID int64) (*ReadPageGuard, error) {
	fr, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	fr.mu.RLock()
	guard := newReadPageGuard(b, fr)
	return &guard, nil
}

// FetchPageWrite fetches pageID and returns it under a write latch.
func (b *BufferpoolManager) FetchPageWrite(pageID int64) (*WritePageGuard, error) {
	fr, err := b.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	fr.mu.Lock()
	guard := newWritePageGuard(b, fr)
	return &guard, nil
}

// NewPageGuarded allocates a new page and returns it under a write latch,
// along with its id.
func (b *BufferpoolManager) NewPageGuarded() (int64, *WritePageGuard, error) {
	pageID, fr, err := b.NewPage()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}
	fr.mu.Lock()
	guard := newWritePageGuard(b, fr)
	return pageID, &guard, nil
}

// UnpinPage decrements pageID's pin count, applying dirty as a sticky OR on
// the frame's dirty flag; once the count reaches zero the frame becomes a
// replacer candidate. Returns false if pageID isn't resident or was already
// unpinned to zero.
func (b *BufferpoolManager) UnpinPage(pageID int64, dirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	fr := b.frames[frameID]

	if fr.pinCount() <= 0 {
		return false
	}

	if dirty {
		fr.dirty = true
	}

	if fr.unpin() == 0 {
		b.replacer.Unpin(fr.id)
	}
	return true
}

// FlushPage writes pageID's current bytes to disk unconditionally and
// clears its dirty flag. Pin count is untouched.
func (b *BufferpoolManager) FlushPage(pageID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(pageID)
}

func (b *BufferpoolManager) flushLocked(pageID int64) bool {
	if pageID == disk.InvalidPageID {
		return false
	}
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}

	fr := b.frames[frameID]
	resp := <-b.scheduler.Schedule(disk.NewWriteRequest(pageID, fr.data))
	if resp.Err != nil {
		log.WithError(resp.Err).WithField("page_id", pageID).Warn("buffer pool: flush failed")
		return false
	}
	fr.dirty = false
	return true
}

// FlushAllPages flushes every resident frame.
func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageID := range b.pageTable {
		b.flushLocked(pageID)
	}
}

// DeletePage removes pageID from the pool and returns its frame to the free
// list. Idempotent on an absent page; fails if the page is still pinned.
// The frame is not flushed first — a deleted id is logically discarded.
func (b *BufferpoolManager) DeletePage(pageID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return true
	}

	fr := b.frames[frameID]
	if fr.pinCount() > 0 {
		return false
	}

	delete(b.pageTable, pageID)
	fr.reset()
	fr.pageID = disk.InvalidPageID
	b.freeList = append(b.freeList, frameID)
	return true
}

// victimLocked pops the free list or asks the replacer for a victim, and
// evicts whatever page the chosen frame currently holds. mu must be held.
func (b *BufferpoolManager) victimLocked() (*frame, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return b.frames[frameID], nil
	}

	frameID, ok := b.replacer.Victim()
	if !ok {
		log.Warn("buffer pool: exhausted, no victim frame available")
		return nil, util.NewBufferpoolExhaustedError("buffer pool exhausted: no frame available to evict")
	}

	fr := b.frames[frameID]
	if fr.pageID != disk.InvalidPageID {
		b.evictLocked(fr)
	}
	return fr, nil
}

// evictLocked writes fr's bytes back if dirty and removes its page table
// entry. mu must be held.
func (b *BufferpoolManager) evictLocked(fr *frame) {
	if fr.dirty {
		resp := <-b.scheduler.Schedule(disk.NewWriteRequest(fr.pageID, fr.data))
		if resp.Err != nil {
			log.WithError(resp.Err).WithField("page_id", fr.pageID).Warn("buffer pool: eviction flush failed")
		}
		fr.dirty = false
	}
	delete(b.pageTable, fr.pageID)
	log.WithFields(log.Fields{"page_id": fr.pageID, "frame_id": fr.id}).Debug("buffer pool: evicted frame")
}

// installLocked records pageID as resident in fr's frame id. mu must be
// held; caller is responsible for fr.reset() and pinning.
func (b *BufferpoolManager) installLocked(fr *frame, pageID int64) {
	fr.pageID = pageID
	b.pageTable[pageID] = fr.id
}
