package index

import (
	"cmp"
	"slices"

	"github.com/jobala/petrocore/storage/disk"
)

// LeafPage holds the (key, value) slot array for a leaf node, plus the
// sibling pointer chaining leaves into the ordered forward-scan list.
type LeafPage[K cmp.Ordered, V any] struct {
	BplusPageHeader
	NextPageID int64
	Keys       []K
	Values     []V
}

func newLeafPage[K cmp.Ordered, V any](pageID, parentID int64, maxSize int32) LeafPage[K, V] {
	p := LeafPage[K, V]{NextPageID: disk.InvalidPageID}
	p.init(pageID, parentID, maxSize)
	p.Keys = make([]K, 0, maxSize)
	p.Values = make([]V, 0, maxSize)
	return p
}

func (p *LeafPage[K, V]) keyAt(i int) K   { return p.Keys[i] }
func (p *LeafPage[K, V]) valueAt(i int) V { return p.Values[i] }

// findInsertIdx returns the first slot whose key is >= key.
func (p *LeafPage[K, V]) findInsertIdx(key K) int {
	lo, hi := 0, int(p.Size)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// findKeyIdx returns the slot holding key, or -1 if absent.
func (p *LeafPage[K, V]) findKeyIdx(key K) int {
	idx := p.findInsertIdx(key)
	if idx < int(p.Size) && p.Keys[idx] == key {
		return idx
	}
	return -1
}

func (p *LeafPage[K, V]) insertAt(idx int, key K, val V) {
	p.Keys = slices.Insert(p.Keys, idx, key)
	p.Values = slices.Insert(p.Values, idx, val)
	p.Size++
}

func (p *LeafPage[K, V]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Values = slices.Delete(p.Values, idx, idx+1)
	p.Size--
}

// MoveHalfTo splits p, moving its upper half into recipient, a freshly
// allocated sibling.
func (p *LeafPage[K, V]) MoveHalfTo(recipient *LeafPage[K, V]) {
	start := int(p.minSize())
	recipient.Keys = append(recipient.Keys, p.Keys[start:]...)
	recipient.Values = append(recipient.Values, p.Values[start:]...)
	recipient.Size = int32(len(recipient.Keys))

	p.Keys = p.Keys[:start]
	p.Values = p.Values[:start]
	p.Size = int32(start)
}

// MoveAllTo merges p's entries onto the end of recipient, its left
// sibling, for the coalesce path.
func (p *LeafPage[K, V]) MoveAllTo(recipient *LeafPage[K, V]) {
	recipient.Keys = append(recipient.Keys, p.Keys...)
	recipient.Values = append(recipient.Values, p.Values...)
	recipient.Size += p.Size
	recipient.NextPageID = p.NextPageID
	p.Keys, p.Values, p.Size = nil, nil, 0
}

// MoveFirstToEndOf lends p's first entry to recipient, its left sibling
// (redistribute when p is the right neighbor).
func (p *LeafPage[K, V]) MoveFirstToEndOf(recipient *LeafPage[K, V]) {
	recipient.Keys = append(recipient.Keys, p.Keys[0])
	recipient.Values = append(recipient.Values, p.Values[0])
	recipient.Size++
	p.removeAt(0)
}

// MoveLastToFrontOf lends p's last entry to recipient, its right sibling
// (redistribute when p is the left neighbor).
func (p *LeafPage[K, V]) MoveLastToFrontOf(recipient *LeafPage[K, V]) {
	last := int(p.Size) - 1
	recipient.Keys = slices.Insert(recipient.Keys, 0, p.Keys[last])
	recipient.Values = slices.Insert(recipient.Values, 0, p.Values[last])
	recipient.Size++
	p.removeAt(last)
}
