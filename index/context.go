package index

import "github.com/jobala/petrocore/buffer"

// Context is the per-operation bookkeeping object an INSERT/DELETE descent
// threads through the tree: the ancestor write guards still held (in
// descent order) and the set of pages to return to the pool once every
// latch in the operation has been released.
type Context struct {
	headerGuard *buffer.WritePageGuard
	ancestors   []*buffer.WritePageGuard
	deleted     []int64
}

func newContext() *Context {
	return &Context{}
}

func (c *Context) holdHeader(g *buffer.WritePageGuard) {
	c.headerGuard = g
}

func (c *Context) holdAncestor(g *buffer.WritePageGuard) {
	c.ancestors = append(c.ancestors, g)
}

// popAncestor removes and returns the most recently held ancestor (the
// immediate parent of whatever node the caller is currently working on).
// The caller takes ownership of dropping it. Returns nil if none are held.
func (c *Context) popAncestor() *buffer.WritePageGuard {
	if len(c.ancestors) == 0 {
		return nil
	}
	g := c.ancestors[len(c.ancestors)-1]
	c.ancestors = c.ancestors[:len(c.ancestors)-1]
	return g
}

func (c *Context) markDeleted(pageID int64) {
	c.deleted = append(c.deleted, pageID)
}

// releaseAncestors drops every held ancestor write guard (and the header
// guard, if still held) in reverse acquisition order, then clears the
// held set.
func (c *Context) releaseAncestors() {
	for i := len(c.ancestors) - 1; i >= 0; i-- {
		c.ancestors[i].Drop()
	}
	c.ancestors = nil

	if c.headerGuard != nil {
		c.headerGuard.Drop()
		c.headerGuard = nil
	}
}
