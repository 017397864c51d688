// Package rangeindex provides RangeIndex, a canonical interval map over the
// byte-string keyspace.
//
// A RangeIndex partitions the whole keyspace ["", +inf) into half-open
// intervals [boundary_i, boundary_i+1), each carrying a value of type T. The
// first boundary is always the empty key, boundaries are strictly increasing,
// and no two adjacent intervals hold values that are equal under the
// caller-supplied equality function. Every update keeps this canonical form by
// coalescing intervals that become equal.
//
// Updates are range-wise: AddRange(start, end, e) replaces the value v of every
// interval overlapping [start, end) with merge(v, e), splitting the intervals
// that straddle start or end. The incoming type E may differ from the stored
// type T, so a RangeIndex can be driven by a small set of update actions while
// storing a richer value.
//
// The implementation keeps the intervals in a flat sorted slice and splices the
// recomputed span in place. Lookups are binary searches. This suits small,
// short-lived maps such as the per-transaction cache in package txcache.
//
// Thread-safety: A RangeIndex is not safe for concurrent use. Callers must
// provide their own synchronization.
package rangeindex
