package root

import (
	"github.com/joshuapare/rootkit/root/scan"
)

// Collector tells the arena which values live in the young generation.
type Collector interface {
	IsYoung(v Value) bool
}

// Runtime is the collector-side interface an Arena attaches to.
type Runtime interface {
	Collector

	// RegisterScanner arranges for fn to be called at the start of every
	// collection of phase, with the runtime lock held.
	RegisterScanner(phase scan.Phase, fn func(relocate scan.Relocator))

	// OnSafePoint arranges for fn to be called at safe points, with the
	// runtime lock held.
	OnSafePoint(fn func())
}

// Attach registers the arena's root scanners with rt and drains deferred
// deletions at rt's safe points. If the arena has no Collector it adopts rt.
func (a *Arena) Attach(rt Runtime) {
	if a.collector == nil {
		a.collector = rt
		a.alloc.InvalidateGenerations()
	}
	for _, phase := range []scan.Phase{scan.Minor, scan.Major} {
		rt.RegisterScanner(phase, func(relocate scan.Relocator) {
			if _, err := a.Scan(phase, relocate); err != nil {
				violation("scan", err)
			}
		})
	}
	rt.OnSafePoint(func() { a.Flush() })
}
