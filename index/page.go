package index

// HeaderPageID is the well-known page id holding the tree's root pointer.
// It is owned by the caller and never participates in the pool's
// monotonic page id allocator, which starts at 1.
const HeaderPageID int64 = 0

// HeaderPage is the fixed page a tree's root id lives in; it is written
// with the invalidPageType tag since its identity is known from
// HeaderPageID alone, not by content sniffing.
type HeaderPage struct {
	RootPageID int64
}

// BplusPageHeader is the header every internal and leaf page embeds: page
// id, parent id, current size, and the configured max size.
type BplusPageHeader struct {
	PageID       int64
	ParentPageID int64
	Size         int32
	MaxSize      int32
}

func (h *BplusPageHeader) init(pageID, parentID int64, maxSize int32) {
	h.PageID = pageID
	h.ParentPageID = parentID
	h.Size = 0
	h.MaxSize = maxSize
}

// minSize is ceil(MaxSize/2), the under-full threshold for non-root pages.
func (h *BplusPageHeader) minSize() int32 {
	return (h.MaxSize + 1) / 2
}

func (h *BplusPageHeader) isFull() bool {
	return h.Size >= h.MaxSize
}

// isInsertSafe is the crabbing safety rule for INSERT descents: strictly
// one below the split threshold, not the threshold itself.
func (h *BplusPageHeader) isInsertSafe() bool {
	return h.Size < h.MaxSize-1
}

// isDeleteSafe is the crabbing safety rule for DELETE descents on a
// non-root page.
func (h *BplusPageHeader) isDeleteSafe() bool {
	return h.Size > h.minSize()
}

// isRootDeleteSafe is the stricter rule for the root under DELETE: a
// size-2 internal root can still collapse on removal.
func (h *BplusPageHeader) isRootDeleteSafe() bool {
	return h.Size > 2
}
