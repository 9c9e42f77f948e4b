package root

import "sync"

type tryLocker interface {
	TryLock() bool
}

// assertLocked panics in rootdebug builds when l is observably unlocked.
// Locks without TryLock are not checked.
func assertLocked(l sync.Locker) {
	if !debugChecks {
		return
	}
	if tl, ok := l.(tryLocker); ok && tl.TryLock() {
		l.Unlock()
		panic("root: runtime lock not held")
	}
}
