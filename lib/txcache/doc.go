// Package txcache implements the client-side cache of a transaction against an
// ordered, serializable key-value store.
//
// A Transaction sits in front of a Backend (the read-your-writes view of one
// database transaction) and keeps everything it has learned in an Index: an
// interval map from the keyspace to Entry values. Each Entry combines the base
// value observed from the backend with the pending local mutations and the
// conflict flags of its interval. Three classes follow from it:
//
//   - value: the interval's first key is known to be present
//   - empty: the interval is known to hold no keys
//   - unknown: nothing is known about the interval
//
// Observed present keys always occupy point intervals [k, successor(k)).
//
// Reads:
//
//   - Get answers from the cache when the key is known and otherwise starts a
//     single backend fetch that concurrent readers of the same key share.
//   - GetKey resolves a KeySelector locally with Resolve, and only asks the
//     backend for the reduced selector when it meets unknown intervals.
//   - GetRange resolves both ends with ResolveRange, serves the cached prefix
//     and suffix of the range, and reads only the unknown gap in between
//     from the backend. The pairs of the gap are recorded and the rest of
//     the scanned span is marked empty.
//
// Writes are recorded as mutations and forwarded to the backend's write
// buffer. Read and write conflict ranges are kept as Entry flags, coalesced
// on demand, and sent to the backend on Commit.
//
// Errors:
//
// Backend errors are wrapped and returned. A failed point fetch leaves the
// key unknown so that a later Get retries it. A backend answer that
// contradicts an earlier observation yields ErrInconsistentRead.
//
// Thread-safety: Transaction is safe for concurrent use. Index and the
// resolver functions are not; they are exported for inspection and testing.
package txcache
