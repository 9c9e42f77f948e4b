// Package alloc routes root allocations to pools of the right size class.
//
// # Overview
//
// Each size class owns a class table: the pools of that class, a current
// pool used by the fast path and a LIFO of other pools that regained free
// capacity. Allocation and deallocation are O(1) with no search:
//
//   - Alloc takes a cell from the current pool (free list first, then the
//     bump cursor). When the current pool fills up, the most recently
//     refilled pool takes over; if there is none a fresh pool is mapped.
//   - Free pushes the cell onto its pool's free list. A pool that becomes
//     empty and is not current is unmapped and its id is recycled.
//
// A cell pointer is resolved to its pool by masking the address down to the
// pool block and reading the pool id from the block header.
//
// # Generations
//
// The allocator keeps the young-pool set (see package dirty) that minor
// scans walk. New pools start young; Demote marks a pool young when a young
// value lands in it; the end of a minor scan promotes every pool.
//
// # Scans
//
// Between BeginScan and EndScan, cells handed out by Alloc are marked fresh
// so the running scan skips them, and pool retirement is postponed so the
// scanner never walks an unmapped block.
//
// # Debug Logging
//
// Set ROOTKIT_LOG_ALLOC=1 to log every allocation and free at debug level
// through the configured logger.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. Every method must be called with
// the owning arena's runtime lock held.
package alloc
