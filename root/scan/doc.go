// Package scan drives the root scan a collector performs at the start of a
// collection.
//
// A scan drains pending deferred deletions, snapshots the pools it has to
// visit, and rewrites every live root word in place with the collector's
// relocation function. A minor scan visits only pools that may hold young
// values; a major scan visits every pool.
//
// Cells created while a scan is running are excluded from it, and pools
// emptied during a scan stay mapped until it ends, so the snapshot remains
// valid throughout.
package scan
