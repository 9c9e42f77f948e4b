package root

import (
	"github.com/joshuapare/rootkit/root/pool"
)

// Value is an opaque managed-heap word. Any bit pattern is a legal Value.
type Value = pool.Value

// Handle is a movable root. The zero Handle is not a root.
type Handle struct {
	dbg handleDebug // empty unless built with rootdebug
	p   *pool.Value
}

func newHandle(c *pool.Value, p *pool.Pool) Handle {
	return Handle{dbg: debugHandle(p), p: c}
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.p == nil }

// Get returns the current value of the root.
func (h Handle) Get() Value {
	if debugChecks && h.dbg.deleted(h.p) {
		violation("get", ErrUseAfterDelete)
	}
	return *h.p
}

// GetRef returns a pointer to the root's first word. The collector updates
// it in place; it stays valid until h is modified or deleted.
func (h Handle) GetRef() *Value {
	if debugChecks && h.dbg.deleted(h.p) {
		violation("get ref", ErrUseAfterDelete)
	}
	return h.p
}

// Move returns the root held by h and leaves h zero.
func (h *Handle) Move() Handle {
	out := *h
	*h = Handle{}
	return out
}
