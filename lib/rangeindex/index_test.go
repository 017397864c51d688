package rangeindex

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	key   byte
	value bool
}

// mergeToggle is the merge used by the matrix tests: a nil incoming value flips the stored
// value, anything else replaces it.
func mergeToggle(old bool, incoming *bool) bool {
	if incoming == nil {
		return !old
	}
	return *incoming
}

func equalBool(a, b bool) bool { return a == b }

func newBoolIndex(pairs []pair) *RangeIndex[bool, *bool] {
	r := New[bool, *bool](false, mergeToggle, equalBool)
	r.ranges = r.ranges[:0]
	for _, p := range pairs {
		r.ranges = append(r.ranges, boundary[bool]{key: []byte{p.key}, value: p.value})
	}
	return r
}

func boolPairs(r *RangeIndex[bool, *bool]) []pair {
	pairs := make([]pair, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		key, value := r.At(i)
		if len(key) != 1 {
			panic(fmt.Sprintf("unexpected key %x", key))
		}
		pairs = append(pairs, pair{key: key[0], value: value})
	}
	return pairs
}

func ptr(b bool) *bool { return &b }

// TestAddRangeSimple covers the basic inserts into an empty map.
func TestAddRangeSimple(t *testing.T) {
	cases := []struct {
		name       string
		start, end []byte
		want       []Range[bool]
	}{
		{"empty span at start", []byte{}, []byte{}, nil},
		{"empty span", []byte{0}, []byte{0}, nil},
		{"from keyspace start", []byte{}, []byte{1}, []Range[bool]{{Start: []byte{}, End: []byte{1}, Value: true}}},
		{"inner", []byte{0}, []byte{1}, []Range[bool]{{Start: []byte{0}, End: []byte{1}, Value: true}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New[bool, bool](false, func(_ bool, b bool) bool { return b }, equalBool)
			r.AddRange(tc.start, tc.end, true)

			var got []Range[bool]
			for i := 0; i < r.Len(); i++ {
				key, value := r.At(i)
				if value {
					got = append(got, Range[bool]{Start: key, End: r.UpperBound(i), Value: value})
				}
			}
			require.Equal(t, tc.want, got)

			first, _ := r.At(0)
			require.Equal(t, []byte{}, first)
		})
	}
}

// TestAddRangeMatrix checks every (start, end) pair against the base map
// 0=false, 3=true, 6=false, 9=true for the toggle, false and true updates.
func TestAddRangeMatrix(t *testing.T) {
	base := []pair{{0, false}, {3, true}, {6, false}, {9, true}}

	variations := []struct {
		start, end                          byte
		expectToggle, expectFalse, expectTrue []pair
	}{
		{0, 0, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{0, 1, []pair{{0, true}, {1, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, true}, {1, false}, {3, true}, {6, false}, {9, true}}},
		{0, 2, []pair{{0, true}, {2, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, true}, {2, false}, {3, true}, {6, false}, {9, true}}},
		{0, 3, []pair{{0, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, true}, {6, false}, {9, true}}},
		{0, 4, []pair{{0, true}, {3, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, true}, {6, false}, {9, true}}},
		{0, 5, []pair{{0, true}, {3, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, true}, {6, false}, {9, true}}},
		{0, 6, []pair{{0, true}, {3, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, true}, {6, false}, {9, true}}},
		{0, 7, []pair{{0, true}, {3, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, true}, {7, false}, {9, true}}},
		{0, 8, []pair{{0, true}, {3, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, true}, {8, false}, {9, true}}},
		{0, 9, []pair{{0, true}, {3, false}, {6, true}}, []pair{{0, false}, {9, true}}, []pair{{0, true}}},
		{0, 10, []pair{{0, true}, {3, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {10, true}}, []pair{{0, true}}},
		{1, 2, []pair{{0, false}, {1, true}, {2, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {1, true}, {2, false}, {3, true}, {6, false}, {9, true}}},
		{1, 3, []pair{{0, false}, {1, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {1, true}, {6, false}, {9, true}}},
		{1, 4, []pair{{0, false}, {1, true}, {3, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {1, true}, {6, false}, {9, true}}},
		{1, 5, []pair{{0, false}, {1, true}, {3, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {1, true}, {6, false}, {9, true}}},
		{1, 6, []pair{{0, false}, {1, true}, {3, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {1, true}, {6, false}, {9, true}}},
		{1, 7, []pair{{0, false}, {1, true}, {3, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {1, true}, {7, false}, {9, true}}},
		{1, 8, []pair{{0, false}, {1, true}, {3, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {1, true}, {8, false}, {9, true}}},
		{1, 9, []pair{{0, false}, {1, true}, {3, false}, {6, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {1, true}}},
		{1, 10, []pair{{0, false}, {1, true}, {3, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {10, true}}, []pair{{0, false}, {1, true}}},
		{2, 3, []pair{{0, false}, {2, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {2, true}, {6, false}, {9, true}}},
		{2, 4, []pair{{0, false}, {2, true}, {3, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {2, true}, {6, false}, {9, true}}},
		{2, 5, []pair{{0, false}, {2, true}, {3, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {2, true}, {6, false}, {9, true}}},
		{2, 6, []pair{{0, false}, {2, true}, {3, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {2, true}, {6, false}, {9, true}}},
		{2, 7, []pair{{0, false}, {2, true}, {3, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {2, true}, {7, false}, {9, true}}},
		{2, 8, []pair{{0, false}, {2, true}, {3, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {2, true}, {8, false}, {9, true}}},
		{2, 9, []pair{{0, false}, {2, true}, {3, false}, {6, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {2, true}}},
		{2, 10, []pair{{0, false}, {2, true}, {3, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {10, true}}, []pair{{0, false}, {2, true}}},
		{3, 4, []pair{{0, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {4, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{3, 5, []pair{{0, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{3, 6, []pair{{0, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{3, 7, []pair{{0, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {3, true}, {7, false}, {9, true}}},
		{3, 8, []pair{{0, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {3, true}, {8, false}, {9, true}}},
		{3, 9, []pair{{0, false}, {6, true}}, []pair{{0, false}, {9, true}}, []pair{{0, false}, {3, true}}},
		{3, 10, []pair{{0, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {10, true}}, []pair{{0, false}, {3, true}}},
		{4, 5, []pair{{0, false}, {3, true}, {4, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {4, false}, {5, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{4, 6, []pair{{0, false}, {3, true}, {4, false}, {9, true}}, []pair{{0, false}, {3, true}, {4, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{4, 7, []pair{{0, false}, {3, true}, {4, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {3, true}, {4, false}, {9, true}}, []pair{{0, false}, {3, true}, {7, false}, {9, true}}},
		{4, 8, []pair{{0, false}, {3, true}, {4, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {3, true}, {4, false}, {9, true}}, []pair{{0, false}, {3, true}, {8, false}, {9, true}}},
		{4, 9, []pair{{0, false}, {3, true}, {4, false}, {6, true}}, []pair{{0, false}, {3, true}, {4, false}, {9, true}}, []pair{{0, false}, {3, true}}},
		{4, 10, []pair{{0, false}, {3, true}, {4, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {3, true}, {4, false}, {10, true}}, []pair{{0, false}, {3, true}}},
		{5, 6, []pair{{0, false}, {3, true}, {5, false}, {9, true}}, []pair{{0, false}, {3, true}, {5, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{5, 7, []pair{{0, false}, {3, true}, {5, false}, {6, true}, {7, false}, {9, true}}, []pair{{0, false}, {3, true}, {5, false}, {9, true}}, []pair{{0, false}, {3, true}, {7, false}, {9, true}}},
		{5, 8, []pair{{0, false}, {3, true}, {5, false}, {6, true}, {8, false}, {9, true}}, []pair{{0, false}, {3, true}, {5, false}, {9, true}}, []pair{{0, false}, {3, true}, {8, false}, {9, true}}},
		{5, 9, []pair{{0, false}, {3, true}, {5, false}, {6, true}}, []pair{{0, false}, {3, true}, {5, false}, {9, true}}, []pair{{0, false}, {3, true}}},
		{5, 10, []pair{{0, false}, {3, true}, {5, false}, {6, true}, {9, false}, {10, true}}, []pair{{0, false}, {3, true}, {5, false}, {10, true}}, []pair{{0, false}, {3, true}}},
		{6, 7, []pair{{0, false}, {3, true}, {7, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {7, false}, {9, true}}},
		{6, 8, []pair{{0, false}, {3, true}, {8, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {8, false}, {9, true}}},
		{6, 9, []pair{{0, false}, {3, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}}},
		{6, 10, []pair{{0, false}, {3, true}, {9, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {10, true}}, []pair{{0, false}, {3, true}}},
		{7, 8, []pair{{0, false}, {3, true}, {6, false}, {7, true}, {8, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {7, true}, {8, false}, {9, true}}},
		{7, 9, []pair{{0, false}, {3, true}, {6, false}, {7, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {7, true}}},
		{7, 10, []pair{{0, false}, {3, true}, {6, false}, {7, true}, {9, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {7, true}}},
		{8, 9, []pair{{0, false}, {3, true}, {6, false}, {8, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {8, true}}},
		{8, 10, []pair{{0, false}, {3, true}, {6, false}, {8, true}, {9, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {8, true}}},
		{9, 9, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{9, 10, []pair{{0, false}, {3, true}, {6, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {10, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
		{10, 10, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}, []pair{{0, false}, {3, true}, {6, false}, {9, true}}},
	}

	for _, v := range variations {
		for _, variant := range []struct {
			name     string
			incoming *bool
			expect   []pair
		}{
			{"toggle", nil, v.expectToggle},
			{"false", ptr(false), v.expectFalse},
			{"true", ptr(true), v.expectTrue},
		} {
			t.Run(fmt.Sprintf("%d-%d-%s", v.start, v.end, variant.name), func(t *testing.T) {
				r := newBoolIndex(base)
				r.AddRange([]byte{v.start}, []byte{v.end}, variant.incoming)
				require.Equal(t, variant.expect, boolPairs(r))
			})
		}
	}
}

// TestGetRangesMatrix checks the clipped tiling for every span of the base map.
func TestGetRangesMatrix(t *testing.T) {
	r := newBoolIndex([]pair{{0, false}, {3, true}, {6, false}, {9, true}})

	type tile struct {
		start, end byte
		value      bool
	}

	variations := []struct {
		start, end byte
		expect     []tile
	}{
		{0, 0, nil},
		{0, 1, []tile{{0, 1, false}}},
		{0, 3, []tile{{0, 3, false}}},
		{0, 4, []tile{{0, 3, false}, {3, 4, true}}},
		{0, 6, []tile{{0, 3, false}, {3, 6, true}}},
		{0, 7, []tile{{0, 3, false}, {3, 6, true}, {6, 7, false}}},
		{0, 10, []tile{{0, 3, false}, {3, 6, true}, {6, 9, false}, {9, 10, true}}},
		{1, 2, []tile{{1, 2, false}}},
		{1, 9, []tile{{1, 3, false}, {3, 6, true}, {6, 9, false}}},
		{2, 4, []tile{{2, 3, false}, {3, 4, true}}},
		{3, 6, []tile{{3, 6, true}}},
		{4, 5, []tile{{4, 5, true}}},
		{4, 10, []tile{{4, 6, true}, {6, 9, false}, {9, 10, true}}},
		{5, 7, []tile{{5, 6, true}, {6, 7, false}}},
		{7, 10, []tile{{7, 9, false}, {9, 10, true}}},
		{8, 9, []tile{{8, 9, false}}},
		{9, 9, nil},
		{9, 10, []tile{{9, 10, true}}},
		{10, 10, nil},
		{6, 3, nil},
	}

	for _, v := range variations {
		t.Run(fmt.Sprintf("%d-%d", v.start, v.end), func(t *testing.T) {
			var got []tile
			for _, rg := range r.GetRanges([]byte{v.start}, []byte{v.end}) {
				got = append(got, tile{rg.Start[0], rg.End[0], rg.Value})
			}
			require.Equal(t, v.expect, got)
		})
	}
}

// TestGet checks point lookups.
func TestGet(t *testing.T) {
	r := newBoolIndex([]pair{{0, false}, {2, true}, {3, false}, {4, true}})

	for key, expect := range map[byte]bool{0: false, 1: false, 2: true, 3: false, 4: true, 5: true} {
		require.Equal(t, expect, r.Get([]byte{key}), "key %d", key)
	}
}

// TestFindIndexPanics checks that an unmatched predicate is treated as an
// invariant violation.
func TestFindIndexPanics(t *testing.T) {
	r := New[bool, bool](false, func(_ bool, b bool) bool { return b }, equalBool)

	require.Panics(t, func() {
		r.FindIndex(func([]byte, bool) bool { return false })
	})
	require.Equal(t, 0, r.FindIndex(func([]byte, bool) bool { return true }))
}

// TestCanonicalForm applies random updates and verifies the structural
// invariants and the tiling property after each step.
func TestCanonicalForm(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	// values are small integers, incoming values are added modulo 3
	r := New[int, int](0, func(old, inc int) int { return (old + inc) % 3 }, func(a, b int) bool { return a == b })
	model := make([]int, 16)

	for step := 0; step < 500; step++ {
		start := rng.Intn(17)
		end := rng.Intn(17)
		inc := rng.Intn(3)

		r.AddRange([]byte{byte(start)}, []byte{byte(end)}, inc)
		for k := start; k < end; k++ {
			model[k] = (model[k] + inc) % 3
		}

		first, _ := r.At(0)
		require.Equal(t, []byte{}, first)

		for i := 1; i < r.Len(); i++ {
			prevKey, prevValue := r.At(i - 1)
			key, value := r.At(i)
			require.True(t, bytes.Compare(prevKey, key) < 0, "boundaries must increase")
			require.NotEqual(t, prevValue, value, "adjacent values must differ")
		}

		for k := 0; k < 16; k++ {
			require.Equal(t, model[k], r.Get([]byte{byte(k)}), "step %d key %d", step, k)
		}

		a, b := rng.Intn(17), rng.Intn(17)
		tiles := r.GetRanges([]byte{byte(a)}, []byte{byte(b)})
		if a >= b {
			require.Empty(t, tiles)
			continue
		}
		require.Equal(t, []byte{byte(a)}, tiles[0].Start)
		require.Equal(t, []byte{byte(b)}, tiles[len(tiles)-1].End)
		for i, tile := range tiles {
			if i > 0 {
				require.Equal(t, tiles[i-1].End, tile.Start)
			}
			require.Equal(t, r.Get(tile.Start), tile.Value)
		}
	}
}

// TestDisjointUpdatesCommute checks that non-overlapping updates can be
// applied in any order.
func TestDisjointUpdatesCommute(t *testing.T) {
	set := func(_ bool, b bool) bool { return b }

	a := New[bool, bool](false, set, equalBool)
	a.AddRange([]byte{1}, []byte{3}, true)
	a.AddRange([]byte{3}, []byte{5}, true)

	b := New[bool, bool](false, set, equalBool)
	b.AddRange([]byte{3}, []byte{5}, true)
	b.AddRange([]byte{1}, []byte{3}, true)

	require.Equal(t, a.String(), b.String())
	require.Equal(t, 3, a.Len())
}
