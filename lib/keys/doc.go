// Package keys provides the byte-string helpers shared by the cache and the
// backends: ordering helpers, successor and namespace-end computation, and the
// KeySelector type used to address keys relative to other keys.
//
// Key Ordering:
//
// All keys are compared with bytes.Compare. A key that is a prefix of another
// key sorts before it. The usable keyspace is ["", "\xff"); keys starting with
// 0xff are reserved and KeyspaceEnd is used as the exclusive upper bound of all
// user data.
//
// Key Selectors:
//
// A KeySelector{Key, Inclusive, Offset} names the key that is Offset positions
// after the anchor, where the anchor is the last present key <= Key (Inclusive)
// or < Key (exclusive). The four common forms have constructors:
//
//	FirstGreaterOrEqual(k)  = {k, false, 1}
//	FirstGreaterThan(k)     = {k, true, 1}
//	LastLessOrEqual(k)      = {k, true, 0}
//	LastLessThan(k)         = {k, false, 0}
//
// Selectors that walk past either end of the keyspace are clamped by the
// backend to "" and KeyspaceEnd respectively.
package keys
