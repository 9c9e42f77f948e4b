// Package pool implements a single root pool: a size-aligned block of
// fixed-width cells with a bump cursor and an intrusive free list.
//
// # Layout
//
//	+-----------------+--------+--------+-----+--------+
//	| header (64 B)   | cell 0 | cell 1 | ... | cell N |
//	+-----------------+--------+--------+-----+--------+
//
// The header records a magic word, the pool id and the cell width so any
// cell address can be resolved to its pool by masking off the low bits
// (see Base and HeaderID). A cell is one or more words. A vacant cell keeps
// the free-list link in its first word.
//
// # Partition
//
// At all times the cells of a pool are partitioned into three disjoint sets:
//
//   - occupied cells (bit set in the live bitmap)
//   - vacant cells reachable from the free-list head
//   - untouched cells at index >= the bump cursor
//
// Check verifies the partition.
//
// # Thread Safety
//
// Pools are not thread-safe. Every method must be called with the owning
// arena's runtime lock held.
package pool
