package buffer

import "sync"

// ClockReplacer selects a victim frame among unpinned frames using a
// reference bit per frame and a rotating hand. This engine
// inverts the textbook clock: a *set* reference bit means "evictable
// candidate" — Unpin sets it, Pin clears it — so Victim never needs a
// separate pinned/unpinned structure; it just skips cleared bits.
type ClockReplacer struct {
	mu       sync.Mutex
	refBit   []bool
	hand     int
	poolSize int
}

// NewClockReplacer builds a replacer over poolSize frames, all initially
// pinned (reference bit false).
func NewClockReplacer(poolSize int) *ClockReplacer {
	return &ClockReplacer{
		refBit:   make([]bool, poolSize),
		poolSize: poolSize,
	}
}

// Unpin marks frameID as an evictable candidate.
func (c *ClockReplacer) Unpin(frameID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refBit[frameID] = true
}

// Pin marks frameID as in use again and advances the hand past it, so a
// subsequent Victim scan doesn't immediately reconsider it.
func (c *ClockReplacer) Pin(frameID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refBit[frameID] = false
	c.hand = c.nextSlot(frameID)
}

// Victim scans at most one full sweep starting at the hand for a set
// reference bit, clears it, advances the hand past it, and returns it. It
// returns ok=false if no frame is currently evictable.
func (c *ClockReplacer) Victim() (frameID int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.hand
	for i := 0; i < c.poolSize; i++ {
		if !c.refBit[current] {
			current = c.nextSlot(current)
			continue
		}
		c.refBit[current] = false
		c.hand = c.nextSlot(current)
		return current, true
	}
	return 0, false
}

// Size reports the number of frames currently carrying a set reference bit.
func (c *ClockReplacer) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, set := range c.refBit {
		if set {
			n++
		}
	}
	return n
}

func (c *ClockReplacer) nextSlot(slot int) int {
	return (slot + 1) % c.poolSize
}
