//go:build rootdebug

package root

import "github.com/joshuapare/rootkit/root/pool"

// debugChecks enables poisoning and use-after-delete detection.
const debugChecks = true

// handleDebug remembers the pool of a handle so reads can consult the live
// bitmap without touching the cell.
type handleDebug struct {
	pool *pool.Pool
}

func debugHandle(p *pool.Pool) handleDebug { return handleDebug{pool: p} }

// deleted reports whether c is no longer an occupied cell of its pool. A
// cell reused by a later Create reads as live.
func (d handleDebug) deleted(c *pool.Value) bool {
	if d.pool == nil {
		return false
	}
	idx, err := d.pool.IndexOf(c)
	return err != nil || !d.pool.IsLive(idx)
}
