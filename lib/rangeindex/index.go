package rangeindex

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Range is one clipped interval returned by GetRanges.
type Range[T any] struct {
	Start []byte
	End   []byte
	Value T
}

type boundary[T any] struct {
	key   []byte
	value T
}

// RangeIndex is a total, canonical map from the keyspace to values of type T,
// updated with values of type E. See the package documentation.
type RangeIndex[T, E any] struct {
	ranges []boundary[T]
	merge  func(old T, incoming E) T
	equal  func(a, b T) bool
}

// New creates a RangeIndex mapping the whole keyspace to defaultValue.
func New[T, E any](defaultValue T, merge func(old T, incoming E) T, equal func(a, b T) bool) *RangeIndex[T, E] {
	return &RangeIndex[T, E]{
		ranges: []boundary[T]{{key: []byte{}, value: defaultValue}},
		merge:  merge,
		equal:  equal,
	}
}

// --------------------------------------------------------------------------
// Updates
// --------------------------------------------------------------------------

// AddRange merges incoming into every interval overlapping [start, end).
// It is a no-op if start >= end.
func (r *RangeIndex[T, E]) AddRange(start, end []byte, incoming E) {
	if bytes.Compare(start, end) >= 0 {
		return
	}

	startIndex := r.IndexOf(start)
	endIndex := r.IndexOf(end)

	var replacement []boundary[T]

	previous := r.merge(r.ranges[startIndex].value, incoming)

	switch {
	case r.equal(r.ranges[startIndex].value, previous):
		// the interval holding start is unchanged, the splice begins after it
		startIndex++
	case bytes.Equal(r.ranges[startIndex].key, start):
		if startIndex == 0 || !r.equal(r.ranges[startIndex-1].value, previous) {
			replacement = append(replacement, boundary[T]{key: clone(start), value: previous})
		}
	default:
		startIndex++
		replacement = append(replacement, boundary[T]{key: clone(start), value: previous})
	}

	for i := startIndex; i < endIndex; i++ {
		value := r.merge(r.ranges[i].value, incoming)

		if !r.equal(previous, value) {
			replacement = append(replacement, boundary[T]{key: r.ranges[i].key, value: value})
			previous = value
		}
	}

	last := r.ranges[endIndex]

	if bytes.Equal(last.key, end) {
		if r.equal(previous, last.value) {
			endIndex++
		}
	} else {
		endValue := r.merge(last.value, incoming)

		if !r.equal(endValue, last.value) {
			if !r.equal(previous, endValue) {
				replacement = append(replacement, boundary[T]{key: last.key, value: endValue})
			}
			replacement = append(replacement, boundary[T]{key: clone(end), value: last.value})
		} else if !r.equal(previous, endValue) {
			replacement = append(replacement, boundary[T]{key: last.key, value: endValue})
		}

		endIndex++
	}

	r.ranges = slices.Replace(r.ranges, startIndex, endIndex, replacement...)
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// GetRanges returns the intervals tiling [start, end), clipped to start and
// end. The result is empty if start >= end.
func (r *RangeIndex[T, E]) GetRanges(start, end []byte) []Range[T] {
	if bytes.Compare(start, end) >= 0 {
		return nil
	}

	startIndex := r.IndexOf(start)
	endIndex := r.IndexOf(end)

	if startIndex == endIndex {
		return []Range[T]{{Start: start, End: end, Value: r.ranges[startIndex].value}}
	}

	ranges := make([]Range[T], 0, endIndex-startIndex+1)

	for i := startIndex; i < endIndex; i++ {
		rangeStart := r.ranges[i].key
		if i == startIndex {
			rangeStart = start
		}
		ranges = append(ranges, Range[T]{Start: rangeStart, End: r.ranges[i+1].key, Value: r.ranges[i].value})
	}

	if !bytes.Equal(end, r.ranges[endIndex].key) {
		ranges = append(ranges, Range[T]{Start: r.ranges[endIndex].key, End: end, Value: r.ranges[endIndex].value})
	}

	return ranges
}

// Get returns the value of the interval containing key.
func (r *RangeIndex[T, E]) Get(key []byte) T {
	return r.ranges[r.IndexOf(key)].value
}

// IndexOf returns the index of the interval containing key.
func (r *RangeIndex[T, E]) IndexOf(key []byte) int {
	return r.FindIndex(func(boundaryKey []byte, _ T) bool {
		return bytes.Compare(boundaryKey, key) <= 0
	})
}

// FindIndex returns the index of the last interval for which pred holds.
// pred must be monotone: true for a (possibly empty) prefix of the intervals
// and false afterwards. FindIndex panics if pred holds for no interval, which
// can only happen through a bug in the caller.
func (r *RangeIndex[T, E]) FindIndex(pred func(key []byte, value T) bool) int {
	index := sort.Search(len(r.ranges), func(i int) bool {
		return !pred(r.ranges[i].key, r.ranges[i].value)
	}) - 1

	if index < 0 {
		panic(fmt.Sprintf("rangeindex: no interval matches (%d intervals)", len(r.ranges)))
	}

	return index
}

// Len returns the number of intervals.
func (r *RangeIndex[T, E]) Len() int {
	return len(r.ranges)
}

// At returns the lower boundary and the value of interval i.
func (r *RangeIndex[T, E]) At(i int) ([]byte, T) {
	return r.ranges[i].key, r.ranges[i].value
}

// UpperBound returns the exclusive upper boundary of interval i, or nil for
// the last interval which extends to the end of the keyspace.
func (r *RangeIndex[T, E]) UpperBound(i int) []byte {
	if i+1 >= len(r.ranges) {
		return nil
	}
	return r.ranges[i+1].key
}

// String renders the boundaries and values, mainly for debugging.
func (r *RangeIndex[T, E]) String() string {
	var buf bytes.Buffer
	for i, b := range r.ranges {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%x=%v", b.key, b.value)
	}
	return buf.String()
}

func clone(key []byte) []byte {
	return append(make([]byte, 0, len(key)), key...)
}
