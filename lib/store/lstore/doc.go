// Package lstore implements a local, in-memory, single-node transactional
// key-value store based on the store.IStore interface. It wraps any db.KVDB
// implementation that supports Clone and Scan.
//
// Implementation Details:
//
//   - Read Versions: NewTransaction clones the database under the commit lock.
//     The transaction reads its clone, so it sees the state of the latest
//     commit at the time it was opened and nothing committed later.
//
//   - Read Your Writes: Writes are applied to the transaction's clone and
//     appended to a write log. Commit replays the log onto the shared database
//     as the next version. Abort drops both.
//
//   - Key Selectors: GetKey and GetRange resolve selectors against the clone
//     and clamp the result to ["", "\xff"]. Selectors anchored at a key that
//     starts with 0xff and is longer than one byte are rejected, and so are
//     writes to any key starting with 0xff.
//
//   - Conflict Ranges: Read and write conflict ranges are recorded per
//     transaction and reported in the debug log on commit. They are not
//     checked, commits always succeed.
//
//   - Snapshots: Save and Load move the committed state to and from a file on
//     an afero.Fs, so the same code works on the OS filesystem and in memory.
//
// Thread Safety:
//
//	All operations are thread-safe. Operations of one transaction are
//	serialized, different transactions run in parallel and only commits
//	serialize with each other.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(func() db.KVDB { return btree.NewBTreeDB(nil) })
//
//	tx, _ := s.NewTransaction(ctx)
//	_ = tx.Set(ctx, []byte("user/1"), []byte("alice"))
//	_ = tx.Commit(ctx)
//
//	_ = s.Save(afero.NewOsFs(), "/var/lib/txcache/snapshot")
package lstore
