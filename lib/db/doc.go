// Package db provides a standardized interface for ordered key-value database
// implementations. The transactional store in lib/store keeps its committed
// state in a KVDB and serves point reads, key selectors and range scans from it.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides point operations (Set, Get, Has, Delete), range operations
//     (DeleteRange, Ascend, Descend), copy-on-write clones (Clone) and
//     persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover supported operations at runtime.
//
//   - Database Information: The DatabaseInfo structure reports the size, key count,
//     implementation type and implementation specific metadata of a database.
//
// Note on Write Indexes:
//   - All write operations take a write-index that serves as a logical timestamp.
//     The store passes the commit version, so WriteIdx is the version of the
//     latest commit applied to the database.
//   - The write-index only increases. Attempts to set a lower index are ignored.
//
// Related Packages:
//
// The engines/btree package (github.com/ValentinKolb/txcache/lib/db/engines/btree)
// implements KVDB on top of a copy-on-write B-tree.
//
// The testing package (github.com/ValentinKolb/txcache/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
