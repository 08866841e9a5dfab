package index

import (
	"cmp"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/jobala/petrocore/buffer"
	"github.com/jobala/petrocore/storage/disk"
)

// opKind distinguishes the crabbing safety rule a descent applies at each
// level.
type opKind int

const (
	opInsert opKind = iota
	opDelete
)

// BPlusTree is a disk-backed, latch-crabbed B+ tree index keyed by K with
// opaque record payloads V. The header page (HeaderPageID) holding the
// root pointer is owned by the caller, not the tree.
type BPlusTree[K cmp.Ordered, V any] struct {
	name            string
	bpm             *buffer.BufferpoolManager
	leafMaxSize     int32
	internalMaxSize int32
}

// NewBPlusTree constructs a tree over the caller-owned header page,
// initializing it to an empty tree with root_page_id set to invalid.
func NewBPlusTree[K cmp.Ordered, V any](name string, bpm *buffer.BufferpoolManager, leafMaxSize, internalMaxSize int32) (*BPlusTree[K, V], error) {
	t := &BPlusTree[K, V]{
		name:            name,
		bpm:             bpm,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}

	guard, err := bpm.FetchPageWrite(HeaderPageID)
	if err != nil {
		return nil, errors.Wrap(err, "index: fetching header page")
	}
	defer guard.Drop()

	if err := t.writeRootPageID(guard, disk.InvalidPageID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetRootPageID returns the tree's current root page id, or
// disk.InvalidPageID for an empty tree.
func (t *BPlusTree[K, V]) GetRootPageID() (int64, error) {
	guard, err := t.bpm.FetchPageRead(HeaderPageID)
	if err != nil {
		return disk.InvalidPageID, err
	}
	defer guard.Drop()

	header, err := decodePage[HeaderPage](guard.Data())
	if err != nil {
		return disk.InvalidPageID, err
	}
	return header.RootPageID, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *BPlusTree[K, V]) IsEmpty() (bool, error) {
	rootID, err := t.GetRootPageID()
	if err != nil {
		return false, err
	}
	return rootID == disk.InvalidPageID, nil
}

func (t *BPlusTree[K, V]) writeRootPageID(guard *buffer.WritePageGuard, rootID int64) error {
	header := HeaderPage{RootPageID: rootID}
	encoded, err := encodePage(invalidPageType, header)
	if err != nil {
		return err
	}
	copy(guard.Data(), encoded)
	return nil
}

// updateRootPageID persists a new root id, reusing ctx's held header
// guard if the current descent still has it write-latched (releasing
// and refetching here would self-deadlock), or fetching it fresh
// otherwise.
func (t *BPlusTree[K, V]) updateRootPageID(ctx *Context, rootID int64) error {
	if ctx.headerGuard != nil {
		return t.writeRootPageID(ctx.headerGuard, rootID)
	}

	guard, err := t.bpm.FetchPageWrite(HeaderPageID)
	if err != nil {
		return err
	}
	defer guard.Drop()
	return t.writeRootPageID(guard, rootID)
}

func (t *BPlusTree[K, V]) putLeaf(guard *buffer.WritePageGuard, page LeafPage[K, V]) error {
	encoded, err := encodePage(leafPageType, page)
	if err != nil {
		return err
	}
	copy(guard.Data(), encoded)
	return nil
}

func (t *BPlusTree[K, V]) putInternal(guard *buffer.WritePageGuard, page InternalPage[K]) error {
	encoded, err := encodePage(internalPageType, page)
	if err != nil {
		return err
	}
	copy(guard.Data(), encoded)
	return nil
}

// readHeader peeks a page's embedded BplusPageHeader without committing
// to a leaf/internal decode, by decoding the full concrete type the tag
// byte names and pulling the header back out (index/codec.go's tagged
// layout makes this the only safe way to do it without relying on
// msgpack's struct-shape tolerance).
func (t *BPlusTree[K, V]) readHeader(data []byte) (BplusPageHeader, pageType, error) {
	switch pt := peekPageType(data); pt {
	case leafPageType:
		p, err := decodePage[LeafPage[K, V]](data)
		return p.BplusPageHeader, pt, err
	case internalPageType:
		p, err := decodePage[InternalPage[K]](data)
		return p.BplusPageHeader, pt, err
	default:
		return BplusPageHeader{}, invalidPageType, errors.Errorf("index: unknown page type tag %d", pt)
	}
}

// isSafe applies the crabbing safety rule for op to a node's header. root
// indicates the stricter root-specific threshold.
func (t *BPlusTree[K, V]) isSafe(h BplusPageHeader, op opKind, root bool) bool {
	switch op {
	case opInsert:
		return h.isInsertSafe()
	default:
		if root {
			return h.isRootDeleteSafe()
		}
		return h.isDeleteSafe()
	}
}

// GetValue returns the value stored for key, or an error if absent.
func (t *BPlusTree[K, V]) GetValue(key K) (V, error) {
	var zero V

	guard, found, err := t.findLeafRead(key, false, false)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, errors.Errorf("index: empty tree")
	}
	defer guard.Drop()

	leaf, err := decodePage[LeafPage[K, V]](guard.Data())
	if err != nil {
		return zero, err
	}

	idx := leaf.findKeyIdx(key)
	if idx < 0 {
		return zero, errors.Errorf("index: key not found")
	}
	return leaf.valueAt(idx), nil
}

// findLeafRead descends under read latches to the leaf that would hold
// key. leftmost/rightmost override key-driven descent to reach the
// first/last leaf for iterator construction. Found is false only for an
// empty tree.
func (t *BPlusTree[K, V]) findLeafRead(key K, leftmost, rightmost bool) (*buffer.ReadPageGuard, bool, error) {
	headerGuard, err := t.bpm.FetchPageRead(HeaderPageID)
	if err != nil {
		return nil, false, err
	}
	header, err := decodePage[HeaderPage](headerGuard.Data())
	if err != nil {
		headerGuard.Drop()
		return nil, false, err
	}
	if header.RootPageID == disk.InvalidPageID {
		headerGuard.Drop()
		return nil, false, nil
	}

	// the header latch is released only once the root's read latch is held
	currGuard, err := t.bpm.FetchPageRead(header.RootPageID)
	headerGuard.Drop()
	if err != nil {
		return nil, false, err
	}

	for {
		if peekPageType(currGuard.Data()) == leafPageType {
			return currGuard, true, nil
		}

		page, err := decodePage[InternalPage[K]](currGuard.Data())
		if err != nil {
			currGuard.Drop()
			return nil, false, err
		}

		var childID int64
		switch {
		case leftmost:
			childID = page.valueAt(0)
		case rightmost:
			childID = page.valueAt(int(page.Size) - 1)
		default:
			childID = page.lookup(key)
		}

		childGuard, err := t.bpm.FetchPageRead(childID)
		if err != nil {
			currGuard.Drop()
			return nil, false, err
		}
		currGuard.Drop()
		currGuard = childGuard
	}
}

// findLeafWrite descends under write latches, crabbing ancestor guards
// out of ctx as soon as a child is found safe for op. Returns nil, nil
// for an empty tree; the caller is responsible for releasing ctx
// regardless.
func (t *BPlusTree[K, V]) findLeafWrite(ctx *Context, key K, op opKind) (*buffer.WritePageGuard, error) {
	headerGuard, err := t.bpm.FetchPageWrite(HeaderPageID)
	if err != nil {
		return nil, err
	}
	ctx.holdHeader(headerGuard)

	header, err := decodePage[HeaderPage](headerGuard.Data())
	if err != nil {
		return nil, err
	}
	if header.RootPageID == disk.InvalidPageID {
		return nil, nil
	}

	currGuard, err := t.bpm.FetchPageWrite(header.RootPageID)
	if err != nil {
		return nil, err
	}

	rootHeader, _, err := t.readHeader(currGuard.Data())
	if err != nil {
		currGuard.Drop()
		return nil, err
	}
	if t.isSafe(rootHeader, op, true) {
		ctx.releaseAncestors()
	}

	for {
		if peekPageType(currGuard.Data()) == leafPageType {
			return currGuard, nil
		}

		page, err := decodePage[InternalPage[K]](currGuard.Data())
		if err != nil {
			currGuard.Drop()
			return nil, err
		}
		childID := page.lookup(key)

		childGuard, err := t.bpm.FetchPageWrite(childID)
		if err != nil {
			currGuard.Drop()
			return nil, err
		}

		childHeader, _, err := t.readHeader(childGuard.Data())
		if err != nil {
			currGuard.Drop()
			childGuard.Drop()
			return nil, err
		}

		ctx.holdAncestor(currGuard)
		if t.isSafe(childHeader, op, false) {
			ctx.releaseAncestors()
		}
		currGuard = childGuard
	}
}

// Insert adds (key, value) to the tree, splitting nodes as needed up to
// a new root. Returns false without error if key already exists; the
// tree does not allow duplicate keys.
func (t *BPlusTree[K, V]) Insert(key K, value V) (bool, error) {
	ctx := newContext()

	leafGuard, err := t.findLeafWrite(ctx, key, opInsert)
	if err != nil {
		ctx.releaseAncestors()
		return false, err
	}
	if leafGuard == nil {
		// findLeafWrite found an empty tree and still holds the header's
		// write latch in ctx — install the first leaf under that same
		// latch so a concurrent Insert can't also see an empty tree and
		// race to install a second root.
		ok, err := t.insertIntoEmptyTree(ctx, key, value)
		ctx.releaseAncestors()
		return ok, err
	}

	leaf, err := decodePage[LeafPage[K, V]](leafGuard.Data())
	if err != nil {
		leafGuard.Drop()
		ctx.releaseAncestors()
		return false, err
	}

	if idx := leaf.findKeyIdx(key); idx >= 0 {
		leafGuard.Drop()
		ctx.releaseAncestors()
		return false, nil
	}

	idx := leaf.findInsertIdx(key)
	leaf.insertAt(idx, key, value)

	if !leaf.isFull() {
		err := t.putLeaf(leafGuard, leaf)
		leafGuard.Drop()
		ctx.releaseAncestors()
		return true, err
	}

	err = t.splitLeaf(ctx, leafGuard, leaf)
	leafGuard.Drop()
	ctx.releaseAncestors()
	return err == nil, err
}

// insertIntoEmptyTree allocates the first leaf page and installs it as
// root, reusing the header write latch findLeafWrite already holds in
// ctx so the empty-tree check and the root install happen atomically.
func (t *BPlusTree[K, V]) insertIntoEmptyTree(ctx *Context, key K, value V) (bool, error) {
	pageID, guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	defer guard.Drop()

	leaf := newLeafPage[K, V](pageID, disk.InvalidPageID, t.leafMaxSize)
	leaf.insertAt(0, key, value)

	if err := t.putLeaf(guard, leaf); err != nil {
		return false, err
	}
	if err := t.writeRootPageID(ctx.headerGuard, pageID); err != nil {
		return false, err
	}
	return true, nil
}

// splitLeaf carves leaf's upper half into a new sibling and threads it
// into insertInParent.
func (t *BPlusTree[K, V]) splitLeaf(ctx *Context, guard *buffer.WritePageGuard, leaf LeafPage[K, V]) error {
	newPageID, newGuard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return err
	}
	defer newGuard.Drop()

	newLeaf := newLeafPage[K, V](newPageID, leaf.ParentPageID, t.leafMaxSize)
	leaf.MoveHalfTo(&newLeaf)
	newLeaf.NextPageID, leaf.NextPageID = leaf.NextPageID, newPageID

	promotedKey := newLeaf.keyAt(0)

	if err := t.putLeaf(guard, leaf); err != nil {
		return err
	}
	if err := t.putLeaf(newGuard, newLeaf); err != nil {
		return err
	}

	// insertInParent reparents both halves by re-fetching them, so their
	// latches are released first; the parent (or the header) is still held.
	guard.Drop()
	newGuard.Drop()
	return t.insertInParent(ctx, leaf.PageID, leaf.ParentPageID, promotedKey, newPageID)
}

// insertInParent threads a freshly-split child's promoted separator key
// into its parent, creating a new root or splitting the parent in turn.
func (t *BPlusTree[K, V]) insertInParent(ctx *Context, leftPageID, parentPageID int64, key K, rightPageID int64) error {
	if parentPageID == disk.InvalidPageID {
		newRootID, newGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			return err
		}
		defer newGuard.Drop()

		newRoot := newInternalPage[K](newRootID, disk.InvalidPageID, t.internalMaxSize)
		newRoot.populateNewRoot(leftPageID, key, rightPageID)

		if err := t.putInternal(newGuard, newRoot); err != nil {
			return err
		}
		if err := t.reparent(leftPageID, newRootID); err != nil {
			return err
		}
		if err := t.reparent(rightPageID, newRootID); err != nil {
			return err
		}
		return t.updateRootPageID(ctx, newRootID)
	}

	parentGuard := ctx.popAncestor()
	if parentGuard == nil {
		var err error
		parentGuard, err = t.bpm.FetchPageWrite(parentPageID)
		if err != nil {
			return err
		}
	}
	defer parentGuard.Drop()

	parent, err := decodePage[InternalPage[K]](parentGuard.Data())
	if err != nil {
		return err
	}
	parent.insertNodeAfter(leftPageID, key, rightPageID)

	if !parent.isFull() {
		return t.putInternal(parentGuard, parent)
	}

	newParentID, newParentGuard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return err
	}
	defer newParentGuard.Drop()

	newParent := newInternalPage[K](newParentID, parent.ParentPageID, t.internalMaxSize)
	parent.MoveHalfTo(&newParent)
	promotedKey := newParent.keyAt(0)

	if err := t.putInternal(parentGuard, parent); err != nil {
		return err
	}
	if err := t.putInternal(newParentGuard, newParent); err != nil {
		return err
	}
	if err := t.reparentRange(&newParent, 0, int(newParent.Size), newParentID); err != nil {
		return err
	}

	// the next level may reparent both halves by re-fetching them
	parentGuard.Drop()
	newParentGuard.Drop()
	return t.insertInParent(ctx, parent.PageID, parent.ParentPageID, promotedKey, newParentID)
}

// reparent updates a single child's stored parent pointer.
func (t *BPlusTree[K, V]) reparent(childPageID, newParentID int64) error {
	guard, err := t.bpm.FetchPageWrite(childPageID)
	if err != nil {
		return err
	}
	defer guard.Drop()

	switch peekPageType(guard.Data()) {
	case leafPageType:
		child, err := decodePage[LeafPage[K, V]](guard.Data())
		if err != nil {
			return err
		}
		child.ParentPageID = newParentID
		return t.putLeaf(guard, child)
	default:
		child, err := decodePage[InternalPage[K]](guard.Data())
		if err != nil {
			return err
		}
		child.ParentPageID = newParentID
		return t.putInternal(guard, child)
	}
}

// reparentRange reparents page's children in [from, to) to newParentID.
func (t *BPlusTree[K, V]) reparentRange(page *InternalPage[K], from, to int, newParentID int64) error {
	for i := from; i < to; i++ {
		if err := t.reparent(page.valueAt(i), newParentID); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes key from the tree if present, cascading merges and
// redistributes back up to the root as needed. A missing key is a
// silent no-op.
func (t *BPlusTree[K, V]) Remove(key K) error {
	ctx := newContext()

	leafGuard, err := t.findLeafWrite(ctx, key, opDelete)
	if err != nil {
		ctx.releaseAncestors()
		return err
	}
	if leafGuard == nil {
		ctx.releaseAncestors()
		return nil
	}

	leaf, err := decodePage[LeafPage[K, V]](leafGuard.Data())
	if err != nil {
		leafGuard.Drop()
		ctx.releaseAncestors()
		return err
	}

	idx := leaf.findKeyIdx(key)
	if idx < 0 {
		leafGuard.Drop()
		ctx.releaseAncestors()
		return nil
	}
	leaf.removeAt(idx)

	opErr := t.coalesceOrRedistributeLeaf(ctx, leafGuard, leaf)
	leafGuard.Drop()
	ctx.releaseAncestors()
	if opErr != nil {
		return opErr
	}

	for _, pageID := range ctx.deleted {
		t.bpm.DeletePage(pageID)
	}
	return nil
}

// coalesceOrRedistributeLeaf restores leaf's invariant after a removal,
// persisting it in every branch: safe as-is, borrowing from a sibling,
// or merging away entirely.
func (t *BPlusTree[K, V]) coalesceOrRedistributeLeaf(ctx *Context, guard *buffer.WritePageGuard, leaf LeafPage[K, V]) error {
	if leaf.ParentPageID == disk.InvalidPageID {
		return t.adjustRootLeaf(ctx, guard, leaf)
	}
	if leaf.Size >= leaf.minSize() {
		return t.putLeaf(guard, leaf)
	}

	parentGuard := ctx.popAncestor()
	if parentGuard == nil {
		var err error
		parentGuard, err = t.bpm.FetchPageWrite(leaf.ParentPageID)
		if err != nil {
			return err
		}
	}
	defer parentGuard.Drop()

	parent, err := decodePage[InternalPage[K]](parentGuard.Data())
	if err != nil {
		return err
	}

	index := parent.valueIndex(leaf.PageID)
	siblingIdx := index - 1
	if index == 0 {
		siblingIdx = 1
	}
	siblingPageID := parent.valueAt(siblingIdx)

	siblingGuard, err := t.bpm.FetchPageWrite(siblingPageID)
	if err != nil {
		return err
	}
	defer siblingGuard.Drop()

	sibling, err := decodePage[LeafPage[K, V]](siblingGuard.Data())
	if err != nil {
		return err
	}

	if leaf.Size+sibling.Size >= leaf.MaxSize {
		if index == 0 {
			sibling.MoveFirstToEndOf(&leaf)
			parent.setKeyAt(1, sibling.keyAt(0))
		} else {
			sibling.MoveLastToFrontOf(&leaf)
			parent.setKeyAt(index, leaf.keyAt(0))
		}
		if err := t.putLeaf(guard, leaf); err != nil {
			return err
		}
		if err := t.putLeaf(siblingGuard, sibling); err != nil {
			return err
		}
		return t.putInternal(parentGuard, parent)
	}

	keyIndex := index
	if index == 0 {
		keyIndex = 1
		sibling.MoveAllTo(&leaf)
		if err := t.putLeaf(guard, leaf); err != nil {
			return err
		}
		ctx.markDeleted(sibling.PageID)
	} else {
		leaf.MoveAllTo(&sibling)
		if err := t.putLeaf(siblingGuard, sibling); err != nil {
			return err
		}
		ctx.markDeleted(leaf.PageID)
	}
	parent.remove(keyIndex)

	// the parent level may reparent these pages by re-fetching them, so
	// their latches are released first; the parent itself stays latched.
	guard.Drop()
	siblingGuard.Drop()
	return t.coalesceOrRedistributeInternal(ctx, parentGuard, parent)
}

// coalesceOrRedistributeInternal is coalesceOrRedistributeLeaf's mirror
// for internal nodes, cascading the merge upward when removing a
// separator empties a parent below its minimum.
func (t *BPlusTree[K, V]) coalesceOrRedistributeInternal(ctx *Context, guard *buffer.WritePageGuard, page InternalPage[K]) error {
	if page.ParentPageID == disk.InvalidPageID {
		return t.adjustRootInternal(ctx, guard, page)
	}
	if page.Size >= page.minSize() {
		return t.putInternal(guard, page)
	}

	parentGuard := ctx.popAncestor()
	if parentGuard == nil {
		var err error
		parentGuard, err = t.bpm.FetchPageWrite(page.ParentPageID)
		if err != nil {
			return err
		}
	}
	defer parentGuard.Drop()

	parent, err := decodePage[InternalPage[K]](parentGuard.Data())
	if err != nil {
		return err
	}

	index := parent.valueIndex(page.PageID)
	siblingIdx := index - 1
	if index == 0 {
		siblingIdx = 1
	}
	siblingPageID := parent.valueAt(siblingIdx)

	siblingGuard, err := t.bpm.FetchPageWrite(siblingPageID)
	if err != nil {
		return err
	}
	defer siblingGuard.Drop()

	sibling, err := decodePage[InternalPage[K]](siblingGuard.Data())
	if err != nil {
		return err
	}

	if page.Size+sibling.Size >= page.MaxSize {
		if index == 0 {
			newSeparator := sibling.MoveFirstToEndOf(&page, parent.keyAt(1))
			parent.setKeyAt(1, newSeparator)
			if err := t.reparent(page.valueAt(int(page.Size)-1), page.PageID); err != nil {
				return err
			}
		} else {
			newSeparator := sibling.MoveLastToFrontOf(&page, parent.keyAt(index))
			parent.setKeyAt(index, newSeparator)
			if err := t.reparent(page.valueAt(0), page.PageID); err != nil {
				return err
			}
		}
		if err := t.putInternal(guard, page); err != nil {
			return err
		}
		if err := t.putInternal(siblingGuard, sibling); err != nil {
			return err
		}
		return t.putInternal(parentGuard, parent)
	}

	keyIndex := index
	if index == 0 {
		keyIndex = 1
		movedFrom := int(sibling.Size)
		middleKey := parent.keyAt(1)
		sibling.MoveAllTo(&page, middleKey)
		if err := t.reparentRange(&page, int(page.Size)-movedFrom, int(page.Size), page.PageID); err != nil {
			return err
		}
		if err := t.putInternal(guard, page); err != nil {
			return err
		}
		ctx.markDeleted(sibling.PageID)
	} else {
		movedFrom := int(sibling.Size)
		middleKey := parent.keyAt(index)
		page.MoveAllTo(&sibling, middleKey)
		if err := t.reparentRange(&sibling, movedFrom, int(sibling.Size), sibling.PageID); err != nil {
			return err
		}
		if err := t.putInternal(siblingGuard, sibling); err != nil {
			return err
		}
		ctx.markDeleted(page.PageID)
	}
	parent.remove(keyIndex)

	// as in coalesceOrRedistributeLeaf: release this level before the
	// parent level re-fetches these pages to reparent them
	guard.Drop()
	siblingGuard.Drop()
	return t.coalesceOrRedistributeInternal(ctx, parentGuard, parent)
}

// adjustRootLeaf handles the root-exempt case: a leaf root may legally
// fall to zero entries, at which point the tree becomes empty.
func (t *BPlusTree[K, V]) adjustRootLeaf(ctx *Context, guard *buffer.WritePageGuard, leaf LeafPage[K, V]) error {
	if leaf.Size > 0 {
		return t.putLeaf(guard, leaf)
	}
	if err := t.updateRootPageID(ctx, disk.InvalidPageID); err != nil {
		return err
	}
	ctx.markDeleted(leaf.PageID)
	return nil
}

// adjustRootInternal collapses a single-child internal root onto that
// child, which becomes the new root.
func (t *BPlusTree[K, V]) adjustRootInternal(ctx *Context, guard *buffer.WritePageGuard, page InternalPage[K]) error {
	if page.Size != 1 {
		return t.putInternal(guard, page)
	}

	childID := page.removeAndReturnOnlyChild()
	if err := t.updateRootPageID(ctx, childID); err != nil {
		return err
	}
	if err := t.reparent(childID, disk.InvalidPageID); err != nil {
		return err
	}
	ctx.markDeleted(page.PageID)

	log.WithFields(log.Fields{"old_root": page.PageID, "new_root": childID}).Debug("index: root collapsed")
	return nil
}
