package keys

import "fmt"

// KeySelector addresses a key relative to another key.
// See the package documentation for the resolution rule.
type KeySelector struct {
	Key       []byte `json:"key"`
	Inclusive bool   `json:"inclusive"`
	Offset    int    `json:"offset"`
}

// FirstGreaterOrEqual selects the first present key >= key.
func FirstGreaterOrEqual(key []byte) KeySelector {
	return KeySelector{Key: key, Inclusive: false, Offset: 1}
}

// FirstGreaterThan selects the first present key > key.
func FirstGreaterThan(key []byte) KeySelector {
	return KeySelector{Key: key, Inclusive: true, Offset: 1}
}

// LastLessOrEqual selects the last present key <= key.
func LastLessOrEqual(key []byte) KeySelector {
	return KeySelector{Key: key, Inclusive: true, Offset: 0}
}

// LastLessThan selects the last present key < key.
func LastLessThan(key []byte) KeySelector {
	return KeySelector{Key: key, Inclusive: false, Offset: 0}
}

// Add returns the selector moved by n positions.
func (s KeySelector) Add(n int) KeySelector {
	s.Offset += n
	return s
}

// ConflictBase returns the first key that is not part of the selector's
// anchor search: successor(Key) for inclusive selectors, Key otherwise.
func (s KeySelector) ConflictBase() []byte {
	if s.Inclusive {
		return Successor(s.Key)
	}
	return s.Key
}

func (s KeySelector) String() string {
	return fmt.Sprintf("{key=%q inclusive=%t offset=%d}", s.Key, s.Inclusive, s.Offset)
}
