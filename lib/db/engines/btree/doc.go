// Package btree implements the db.KVDB interface on an in-memory B-tree
// (github.com/google/btree).
//
// Entries are kept in key order, so point lookups, inserts and deletes take
// O(log n) and range scans visit only the entries they return. Clone copies
// the tree lazily: the clone and the original share nodes until one of them
// is written, so a private copy per transaction is cheap.
//
// Thread-safety: All methods are safe for concurrent use.
//
// File Format (Save/Load):
//
//	magic "TXBTREE\x00" | version uint8 | write index uint64 | count uint64
//	count x ( key length uint32 | key | index uint64 | value length uint32 | value )
//
// All integers are little endian. Entries are written in key order.
package btree
