// Package root provides movable roots for foreign code holding references
// into a moving, generational managed heap.
//
// A Handle is a pointer to a cell owned by an Arena. The collector rewrites
// the cell in place when it moves the value, so Get always returns the
// current location.
//
// # Usage
//
//	a, err := root.New(root.DefaultConfig())
//	...
//	a.Attach(rt) // scan roots at every collection, drain at safe points
//
//	a.Lock()
//	h, err := a.Create(v)
//	v = h.Get()
//	a.Modify(&h, w)
//	a.Delete(h)
//	a.Unlock()
//
// # Locking
//
// Create, CreateN, Modify, Delete, Scan and Flush require the runtime lock,
// the Arena's Lock. Get and GetRef only read the cell and need whatever
// guarantees the caller already has that no collection is running.
//
// Goroutines that cannot take the lock release roots through a Queue:
//
//	q := a.NewQueue()
//	defer q.Close()
//	q.Delete(h) // never blocks
//
// Queued roots stay live, and keep their values reachable, until the next
// safe point drains them.
//
// # Ownership
//
// A Handle is owned by exactly one holder. Copying a Handle does not create
// a new root; use Move to transfer ownership explicitly. Deleting a root
// twice, or using it after Delete, is a contract violation. Builds with the
// rootdebug tag poison freed cells and panic on such use. Detection reads
// the pool's live bitmap, never the stored word, so every bit pattern stays
// a legal Value.
package root
