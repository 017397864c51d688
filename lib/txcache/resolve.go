package txcache

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/txcache/lib/keys"
)

// ResolutionKind tags a Resolution.
type ResolutionKind uint8

const (
	ResolvedKey        ResolutionKind = iota + 1 // Key holds the absolute key
	ResolvedPending                              // Selector must be resolved by the backend
	ResolvedOutOfRange                           // the selector points before the keyspace start
)

// Resolution is the outcome of resolving a KeySelector against the cache.
type Resolution struct {
	Kind     ResolutionKind
	Key      []byte
	Selector keys.KeySelector
}

func resolvedKey(key []byte) Resolution {
	return Resolution{Kind: ResolvedKey, Key: key}
}

func pending(sel keys.KeySelector) Resolution {
	return Resolution{Kind: ResolvedPending, Selector: sel}
}

func outOfRange() Resolution {
	return Resolution{Kind: ResolvedOutOfRange}
}

func (r Resolution) String() string {
	switch r.Kind {
	case ResolvedKey:
		return fmt.Sprintf("key(%q)", r.Key)
	case ResolvedPending:
		return fmt.Sprintf("pending(%s)", r.Selector)
	case ResolvedOutOfRange:
		return "out-of-range"
	default:
		return "invalid"
	}
}

// pastEnd reports whether sel can only resolve to the end of the keyspace.
func pastEnd(sel keys.KeySelector, keyspaceEnd []byte) bool {
	return sel.Offset >= 1 && bytes.Compare(sel.Key, keyspaceEnd) >= 0
}

// Resolve resolves sel using only what the index knows.
//
// The value interval starting at boundary b stands for the present key b.
// Empty intervals never count as anchors. When the walk reaches an unknown
// interval the result is a Pending selector that the backend resolves to the
// same key as sel, anchored as close to the unknown part as possible. If the
// walk leaves the known part of the keyspace forward, the result is Pending
// at keyspaceEnd. Walking backward past the first key yields OutOfRange.
func Resolve(index *Index, sel keys.KeySelector, keyspaceEnd []byte) Resolution {
	i := index.IndexOf(sel.Key)
	if sel.Offset > 0 {
		return resolveForward(index, sel, i, keyspaceEnd)
	}
	return resolveBackward(index, sel, i)
}

// resolveForward finds the Offset-th present key >= Key (exclusive) or > Key
// (inclusive), starting in interval i which contains Key.
func resolveForward(index *Index, sel keys.KeySelector, i int, keyspaceEnd []byte) Resolution {
	remaining := sel.Offset

	boundary, entry := index.At(i)
	switch entry.Class() {
	case ClassValue:
		if !sel.Inclusive && bytes.Equal(boundary, sel.Key) {
			remaining--
			if remaining == 0 {
				return resolvedKey(boundary)
			}
		}
	case ClassUnknown:
		// (Key, successor(Key)) holds no keys, so an inclusive selector whose
		// interval ends right there has nothing unknown left in it
		if !sel.Inclusive || !keys.IsSuccessor(sel.Key, index.UpperBound(i)) {
			return pending(sel)
		}
	}

	for j := i + 1; j < index.Len(); j++ {
		boundary, entry := index.At(j)

		switch entry.Class() {
		case ClassValue:
			remaining--
			if remaining == 0 {
				return resolvedKey(boundary)
			}
		case ClassUnknown:
			if bytes.Compare(boundary, keyspaceEnd) >= 0 {
				return pending(keys.FirstGreaterOrEqual(keyspaceEnd))
			}
			return pending(keys.KeySelector{Key: boundary, Inclusive: false, Offset: remaining})
		}
	}

	return pending(keys.FirstGreaterOrEqual(keyspaceEnd))
}

// resolveBackward finds the (1-Offset)-th present key <= Key (inclusive) or
// < Key (exclusive), walking down from interval i which contains Key.
func resolveBackward(index *Index, sel keys.KeySelector, i int) Resolution {
	needed := 1 - sel.Offset

	boundary, entry := index.At(i)
	excluded := !sel.Inclusive && bytes.Equal(boundary, sel.Key)

	switch entry.Class() {
	case ClassValue:
		if !excluded {
			needed--
			if needed == 0 {
				return resolvedKey(boundary)
			}
		}
	case ClassUnknown:
		if !excluded {
			return pending(sel)
		}
	}

	for j := i - 1; j >= 0; j-- {
		boundary, entry := index.At(j)

		switch entry.Class() {
		case ClassValue:
			needed--
			if needed == 0 {
				return resolvedKey(boundary)
			}
		case ClassUnknown:
			return pending(keys.KeySelector{Key: index.UpperBound(j), Inclusive: false, Offset: 1 - needed})
		}
	}

	return outOfRange()
}
