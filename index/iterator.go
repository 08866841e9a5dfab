package index

import (
	"cmp"

	"github.com/pkg/errors"

	"github.com/jobala/petrocore/buffer"
	"github.com/jobala/petrocore/storage/disk"
)

// Iterator is a forward cursor over a tree's leaves, chained by
// next-page-id links. Between calls it holds one leaf read latch,
// released on Close or, when crossing into the next leaf, right after the
// next leaf's latch is taken.
type Iterator[K cmp.Ordered, V any] struct {
	tree  *BPlusTree[K, V]
	guard *buffer.ReadPageGuard
	leaf  LeafPage[K, V]
	index int
}

// Begin positions the iterator at the first entry of the leftmost leaf.
func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	var zero K
	return t.beginAt(zero, true, false)
}

// BeginAt positions the iterator at the first entry whose key is >= target.
func (t *BPlusTree[K, V]) BeginAt(target K) (*Iterator[K, V], error) {
	return t.beginAt(target, false, false)
}

// End positions the iterator at the past-the-end sentinel of the
// rightmost leaf.
func (t *BPlusTree[K, V]) End() (*Iterator[K, V], error) {
	var zero K
	it, err := t.beginAt(zero, false, true)
	if err != nil || it.guard == nil {
		return it, err
	}
	it.index = int(it.leaf.Size)
	return it, nil
}

func (t *BPlusTree[K, V]) beginAt(target K, leftmost, rightmost bool) (*Iterator[K, V], error) {
	guard, found, err := t.findLeafRead(target, leftmost, rightmost)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Iterator[K, V]{tree: t}, nil
	}

	leaf, err := decodePage[LeafPage[K, V]](guard.Data())
	if err != nil {
		guard.Drop()
		return nil, err
	}

	idx := 0
	if !leftmost && !rightmost {
		idx = leaf.findInsertIdx(target)
	}
	return &Iterator[K, V]{tree: t, guard: guard, leaf: leaf, index: idx}, nil
}

// IsEnd reports whether the cursor has no more entries to yield.
func (it *Iterator[K, V]) IsEnd() bool {
	return it.guard == nil || (it.index >= int(it.leaf.Size) && it.leaf.NextPageID == disk.InvalidPageID)
}

// Next returns the entry the cursor currently points at and advances it,
// crossing into the sibling leaf when the current one is exhausted.
func (it *Iterator[K, V]) Next() (K, V, error) {
	var zeroK K
	var zeroV V
	if it.IsEnd() {
		return zeroK, zeroV, errors.New("index: iterator past end")
	}

	// the cursor can already sit at or past the current leaf's last slot
	// (BeginAt landing past every key a leaf holds), so cross into the
	// sibling before reading, not after.
	for it.index >= int(it.leaf.Size) {
		nextGuard, err := it.tree.bpm.FetchPageRead(it.leaf.NextPageID)
		if err != nil {
			return zeroK, zeroV, err
		}
		nextLeaf, err := decodePage[LeafPage[K, V]](nextGuard.Data())
		if err != nil {
			nextGuard.Drop()
			return zeroK, zeroV, err
		}
		it.guard.Drop()
		it.guard = nextGuard
		it.leaf = nextLeaf
		it.index = 0
	}

	key, val := it.leaf.keyAt(it.index), it.leaf.valueAt(it.index)
	it.index++
	return key, val, nil
}

// Close releases the iterator's held leaf guard, if any. Safe to call
// more than once.
func (it *Iterator[K, V]) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
