package scan

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joshuapare/rootkit/root/pool"
)

var (
	// ErrScanInProgress indicates a scan was requested while one is running.
	ErrScanInProgress = errors.New("scan: scan already in progress")

	// ErrBadPhase indicates an unknown collection phase.
	ErrBadPhase = errors.New("scan: unknown phase")
)

// Phase is the kind of collection a scan serves.
type Phase uint8

const (
	// Minor scans visit young pools only.
	Minor Phase = iota + 1
	// Major scans visit every pool.
	Major
)

func (p Phase) String() string {
	switch p {
	case Minor:
		return "minor"
	case Major:
		return "major"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Relocator returns the post-collection value of a root. It is called once
// per live root word and may return its argument unchanged.
type Relocator func(pool.Value) pool.Value

// Source is the pool owner a Registrar scans.
type Source interface {
	// Drain frees pending deferred deletions and returns how many.
	Drain() int
	// BeginScan enters scan mode.
	BeginScan()
	// Snapshot appends the pools the scan visits to dst.
	Snapshot(minor bool, dst []*pool.Pool) []*pool.Pool
	// EndScan leaves scan mode, promoting pools after a minor scan.
	EndScan(minor bool)
}

// Result describes one completed scan.
type Result struct {
	Phase    Phase
	Pools    int           // Pools visited
	Roots    int           // Root cells visited
	Drained  int           // Deferred deletions freed first
	Duration time.Duration // Wall time of the scan
}

type state uint8

const (
	idle state = iota
	scanning
)

// Registrar runs scans over a Source. Scans must be serialised by the
// caller, which holds the owning arena's lock.
type Registrar struct {
	src    Source
	state  state
	buf    []*pool.Pool
	logger *slog.Logger
	counts [Major + 1]uint64
}

// New returns a Registrar over src. A nil logger discards.
func New(src Source, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registrar{src: src, logger: logger}
}

// Scan runs one scan of the given phase, rewriting every visited root with
// relocate. It fails only on a bad phase or a nested scan.
func (r *Registrar) Scan(phase Phase, relocate Relocator) (Result, error) {
	if phase != Minor && phase != Major {
		return Result{}, fmt.Errorf("%w: %d", ErrBadPhase, uint8(phase))
	}
	if r.state == scanning {
		return Result{}, ErrScanInProgress
	}
	start := time.Now()
	res := Result{Phase: phase}

	res.Drained = r.src.Drain()

	minor := phase == Minor
	r.state = scanning
	r.src.BeginScan()
	defer func() {
		r.src.EndScan(minor)
		r.state = idle
	}()

	r.buf = r.src.Snapshot(minor, r.buf[:0])
	res.Pools = len(r.buf)
	for _, p := range r.buf {
		res.Roots += p.Scan(func(w *pool.Value) {
			*w = relocate(*w)
		})
	}
	clear(r.buf)

	res.Duration = time.Since(start)
	r.counts[phase]++
	r.logger.Debug("root scan",
		"phase", phase.String(),
		"pools", res.Pools,
		"roots", res.Roots,
		"drained", res.Drained,
		"duration", res.Duration)
	return res, nil
}

// Scanning reports whether a scan is running.
func (r *Registrar) Scanning() bool { return r.state == scanning }

// Count returns the number of completed scans of phase.
func (r *Registrar) Count(phase Phase) uint64 {
	if phase != Minor && phase != Major {
		return 0
	}
	return r.counts[phase]
}
