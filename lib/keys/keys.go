package keys

import "bytes"

// KeyspaceEnd is the exclusive upper bound of the user keyspace.
var KeyspaceEnd = []byte{0xff}

// Successor returns the smallest key strictly greater than key, which is key
// with a single NUL byte appended. The input is never modified.
func Successor(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

// IsSuccessor reports whether next == Successor(key) without allocating.
func IsSuccessor(key, next []byte) bool {
	return len(next) == len(key)+1 && next[len(key)] == 0 && bytes.HasPrefix(next, key)
}

// NamespaceEnd returns the smallest key that is greater than every key having
// prefix as a prefix. The last byte that is not 0xff is incremented and
// everything after it is dropped. A prefix consisting only of 0xff bytes (or
// the empty prefix) is extended with another 0xff byte instead.
func NamespaceEnd(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			end := make([]byte, i+1)
			copy(end, prefix)
			end[i]++
			return end
		}
	}

	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xff
	return end
}

// Min returns the lesser of a and b.
func Min(a, b []byte) []byte {
	if bytes.Compare(a, b) <= 0 {
		return a
	}
	return b
}

// Max returns the greater of a and b.
func Max(a, b []byte) []byte {
	if bytes.Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Clone returns a copy of key that does not share memory with it.
// A nil key stays nil.
func Clone(key []byte) []byte {
	if key == nil {
		return nil
	}
	return append(make([]byte, 0, len(key)), key...)
}

// IsUserKey reports whether key lies inside the writable keyspace.
// The single byte 0xff is still accepted as a selector bound but not as a key.
func IsUserKey(key []byte) bool {
	return len(key) == 0 || key[0] != 0xff
}
