// Package dirty tracks which pools a minor scan has to visit.
//
// # Overview
//
// A generational collector only needs the roots that may point at young
// values during a minor collection. Pools are tagged young when a young
// value is stored into them and every pool is promoted to old once a minor
// scan has run. The Tracker is the set of young pool ids, so a minor scan
// costs O(young pools) instead of O(all pools).
//
// # Usage
//
//	t := dirty.NewTracker()
//	t.Add(p.ID())          // young value stored into p
//	t.Each(func(id uint32) { ... })
//	t.Reset()              // after the minor scan
//
// # Range Coalescing
//
// Ranges returns the set as sorted, merged id intervals:
//
//	ids [0, 1, 2, 5, 6] -> ranges [0-3, 5-7]
//
// # Thread Safety
//
// Trackers are not thread-safe. The owning arena serialises access through
// its runtime lock.
package dirty
