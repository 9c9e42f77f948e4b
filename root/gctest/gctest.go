// Package gctest provides a toy generational heap for exercising roots
// against a real scan and relocation protocol.
//
// Values are either immediates (odd words and zero), which the heap ignores,
// or object addresses. A Heap collects every object no root reaches and, in
// moving mode, relocates every surviving object at every collection, so a
// root that was not scanned is left holding a dangling address.
package gctest

import (
	"fmt"

	"github.com/joshuapare/rootkit/root/pool"
	"github.com/joshuapare/rootkit/root/scan"
)

const (
	firstAddr = 0x1000
	addrStep  = 16
)

type object struct {
	payload uint64
	young   bool
}

// Heap is a toy managed heap. It is not safe for concurrent use; callers
// serialise access with the runtime lock.
type Heap struct {
	moving  bool
	objects map[pool.Value]*object
	next    pool.Value

	scanners   map[scan.Phase][]func(scan.Relocator)
	safePoints []func()
	counts     map[scan.Phase]int

	// born holds objects allocated by the collection in progress.
	born map[pool.Value]bool
}

// New returns an empty heap. A moving heap relocates survivors at every
// collection, minor and major.
func New(moving bool) *Heap {
	return &Heap{
		moving:   moving,
		objects:  make(map[pool.Value]*object),
		next:     firstAddr,
		scanners: make(map[scan.Phase][]func(scan.Relocator)),
		counts:   make(map[scan.Phase]int),
	}
}

// Immediate returns the immediate value encoding n.
func Immediate(n uint64) pool.Value { return pool.Value(n<<1 | 1) }

// IsImmediate reports whether v is not an object address.
func IsImmediate(v pool.Value) bool { return v == 0 || v&1 == 1 }

// Alloc returns the address of a new young object holding payload.
func (h *Heap) Alloc(payload uint64) pool.Value {
	addr := h.fresh()
	h.objects[addr] = &object{payload: payload, young: true}
	if h.born != nil {
		h.born[addr] = true
	}
	return addr
}

func (h *Heap) fresh() pool.Value {
	addr := h.next
	h.next += addrStep
	return addr
}

// Payload returns the payload of the object at v.
func (h *Heap) Payload(v pool.Value) (uint64, bool) {
	o, ok := h.objects[v]
	if !ok {
		return 0, false
	}
	return o.payload, true
}

// IsYoung reports whether v is a young object.
func (h *Heap) IsYoung(v pool.Value) bool {
	o, ok := h.objects[v]
	return ok && o.young
}

// Live returns the number of objects in the heap.
func (h *Heap) Live() int { return len(h.objects) }

// Moving reports whether the heap relocates survivors.
func (h *Heap) Moving() bool { return h.moving }

// Collections returns the number of completed collections of phase.
func (h *Heap) Collections(phase scan.Phase) int { return h.counts[phase] }

// RegisterScanner implements the root runtime interface.
func (h *Heap) RegisterScanner(phase scan.Phase, fn func(relocate scan.Relocator)) {
	h.scanners[phase] = append(h.scanners[phase], fn)
}

// OnSafePoint implements the root runtime interface.
func (h *Heap) OnSafePoint(fn func()) {
	h.safePoints = append(h.safePoints, fn)
}

// SafePoint runs the safe point callbacks.
func (h *Heap) SafePoint() {
	for _, fn := range h.safePoints {
		fn()
	}
}

// Collect runs one collection of phase. A minor collection frees young
// objects no root reaches; a major collection frees every unreached object.
// Survivors become old. Objects allocated while the collection runs, for
// instance by a scanner, survive it and stay young unless a root reached
// them.
//
// Collect panics when a scanned root holds an address that is not an object,
// which means a root missed an earlier relocation or was used after delete.
func (h *Heap) Collect(phase scan.Phase) {
	h.SafePoint()

	h.born = make(map[pool.Value]bool)
	defer func() { h.born = nil }()
	forward := make(map[pool.Value]pool.Value)
	reached := make(map[pool.Value]*object)
	relocate := func(v pool.Value) pool.Value {
		if IsImmediate(v) {
			return v
		}
		if to, ok := forward[v]; ok {
			return to
		}
		o, ok := h.objects[v]
		if !ok {
			panic(fmt.Sprintf("gctest: root holds dangling address %#x", uint64(v)))
		}
		if phase == scan.Minor && !o.young {
			return v
		}
		to := v
		if h.moving {
			to = h.fresh()
		}
		forward[v] = to
		reached[to] = o
		return to
	}
	for _, fn := range h.scanners[phase] {
		fn(relocate)
	}

	for addr, o := range h.objects {
		if phase == scan.Minor && !o.young {
			continue
		}
		if _, moved := forward[addr]; h.born[addr] && !moved {
			continue
		}
		delete(h.objects, addr)
	}
	for addr, o := range reached {
		o.young = false
		h.objects[addr] = o
	}
	h.counts[phase]++
}
