package index

import (
	"cmp"
	"slices"
)

// InternalPage holds the separator-key/child-id slot array for an internal
// node. Slot 0's key is unused by convention: the child at slot i covers
// [key[i], key[i+1]) with key[0] treated as -infinity.
type InternalPage[K cmp.Ordered] struct {
	BplusPageHeader
	Keys   []K
	Values []int64 // child page ids
}

func newInternalPage[K cmp.Ordered](pageID, parentID int64, maxSize int32) InternalPage[K] {
	var zeroKey K
	p := InternalPage[K]{}
	p.init(pageID, parentID, maxSize)
	p.Keys = make([]K, 1, maxSize)
	p.Values = make([]int64, 1, maxSize)
	p.Keys[0] = zeroKey
	return p
}

func (p *InternalPage[K]) keyAt(i int) K        { return p.Keys[i] }
func (p *InternalPage[K]) setKeyAt(i int, k K)   { p.Keys[i] = k }
func (p *InternalPage[K]) valueAt(i int) int64   { return p.Values[i] }
func (p *InternalPage[K]) isLeaf() bool          { return false }

func (p *InternalPage[K]) valueIndex(value int64) int {
	for i := 0; i < int(p.Size); i++ {
		if p.Values[i] == value {
			return i
		}
	}
	return -1
}

// lookup binary-searches slots 1..size-1 for the greatest key <= target and
// returns that slot's child.
func (p *InternalPage[K]) lookup(key K) int64 {
	lo, hi := 1, int(p.Size)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return p.Values[lo-1]
}

// populateNewRoot initializes a brand-new root with exactly two children.
func (p *InternalPage[K]) populateNewRoot(oldValue int64, newKey K, newValue int64) {
	p.Values[0] = oldValue
	p.Keys = append(p.Keys, newKey)
	p.Values = append(p.Values, newValue)
	p.Size = 2
}

// insertNodeAfter inserts (newKey, newValue) immediately after the slot
// holding oldValue.
func (p *InternalPage[K]) insertNodeAfter(oldValue int64, newKey K, newValue int64) {
	idx := p.valueIndex(oldValue) + 1
	p.Keys = slices.Insert(p.Keys, idx, newKey)
	p.Values = slices.Insert(p.Values, idx, newValue)
	p.Size++
}

func (p *InternalPage[K]) remove(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Values = slices.Delete(p.Values, idx, idx+1)
	p.Size--
}

// removeAndReturnOnlyChild empties a root collapsing to its sole child.
func (p *InternalPage[K]) removeAndReturnOnlyChild() int64 {
	child := p.Values[0]
	p.Keys = p.Keys[:0]
	p.Values = p.Values[:0]
	p.Size = 0
	return child
}

// MoveHalfTo splits p, moving its upper half of slots into recipient, a
// freshly allocated sibling. recipient.Keys[0] after the call holds the
// promoted separator key that the caller must pass up to insertInParent.
func (p *InternalPage[K]) MoveHalfTo(recipient *InternalPage[K]) {
	start := int(p.minSize())
	recipient.Keys = append(recipient.Keys[:0], p.Keys[start:]...)
	recipient.Values = append(recipient.Values[:0], p.Values[start:]...)
	recipient.Size = int32(len(recipient.Values))

	p.Keys = p.Keys[:start]
	p.Values = p.Values[:start]
	p.Size = int32(start)
}

// MoveAllTo merges p onto the end of survivor, its left sibling, during a
// coalesce. middleKey is the parent's separator between survivor and p,
// which fills p's semantically-undefined slot-0 key before the append.
func (p *InternalPage[K]) MoveAllTo(survivor *InternalPage[K], middleKey K) {
	p.Keys[0] = middleKey
	survivor.Keys = append(survivor.Keys, p.Keys...)
	survivor.Values = append(survivor.Values, p.Values...)
	survivor.Size += p.Size
	p.Keys, p.Values, p.Size = nil, nil, 0
}

// MoveLastToFrontOf lends p's last entry to recipient's front during a
// redistribute where recipient borrows from its left sibling p. middleKey
// is the parent's current separator between p and recipient, and becomes
// recipient's new first real key. Returns the key the caller must install
// as the parent's new separator (p's removed boundary key).
func (p *InternalPage[K]) MoveLastToFrontOf(recipient *InternalPage[K], middleKey K) K {
	last := int(p.Size) - 1
	newSeparator := p.Keys[last]
	movedChild := p.Values[last]
	p.remove(last)

	recipient.Keys = slices.Insert(recipient.Keys, 1, middleKey)
	recipient.Values = slices.Insert(recipient.Values, 0, movedChild)
	recipient.Size++
	return newSeparator
}

// MoveFirstToEndOf lends p's first entry to recipient's end during a
// redistribute where recipient borrows from its right sibling p. middleKey
// is the parent's current separator between recipient and p, and becomes
// the real key of the moved entry. Returns the key the caller must install
// as the parent's new separator (p's new first boundary key).
func (p *InternalPage[K]) MoveFirstToEndOf(recipient *InternalPage[K], middleKey K) K {
	movedChild := p.Values[0]
	newSeparator := p.Keys[1]
	p.remove(0)

	recipient.Keys = append(recipient.Keys, middleKey)
	recipient.Values = append(recipient.Values, movedChild)
	recipient.Size++
	return newSeparator
}
