// Package reclaim queues root deletions made by goroutines that do not hold
// the runtime lock, and frees them later from a goroutine that does.
//
// Every foreign goroutine owns one Queue. Queue.Delete pushes onto a
// lock-free stack and never blocks. The lock holder calls Registry.Drain at
// a safe point, which detaches every stack with a single atomic swap and
// frees the entries. Drained nodes go back to their queue's spare list, so a
// queue in steady state allocates nothing.
//
// A queued cell stays occupied, and is still scanned, until it is drained.
package reclaim
