package txcache

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Model
// --------------------------------------------------------------------------

// model is a small database together with a cache index that holds partial,
// consistent knowledge of it.
type model struct {
	data  map[string][]byte
	index *Index
	ids   uint64
}

func newModel() *model {
	return &model{data: map[string][]byte{}, index: NewIndex()}
}

func (m *model) nextID() uint64 {
	m.ids++
	return m.ids
}

// sorted returns the present keys in order.
func (m *model) sorted() [][]byte {
	out := make([][]byte, 0, len(m.data))
	for k := range m.data {
		out = append(out, []byte(k))
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// put adds a key to the database without the cache knowing.
func (m *model) put(key, value []byte) {
	m.data[string(key)] = value
}

// observe records [begin, end) in the cache the way a range read does.
func (m *model) observe(begin, end []byte) {
	for _, k := range m.sorted() {
		if bytes.Compare(k, begin) >= 0 && bytes.Compare(k, end) < 0 {
			m.index.AddRange(k, keys.Successor(k), setBase(m.data[string(k)], true, m.nextID(), nil))
		}
	}
	m.index.AddRange(begin, end, fillAbsent)
}

// set and clearRange are local writes known to the cache.
func (m *model) set(key, value []byte) {
	m.data[string(key)] = value
	m.index.AddRange(key, keys.Successor(key), addMutation(SetMutation(value), m.nextID()))
}

func (m *model) clearRange(begin, end []byte) {
	for k := range m.data {
		if bytes.Compare([]byte(k), begin) >= 0 && bytes.Compare([]byte(k), end) < 0 {
			delete(m.data, k)
		}
	}
	m.index.AddRange(begin, end, addMutation(ClearMutation(), 0))
}

// resolve is the reference resolution against the database, clamped to
// ["", KeyspaceEnd]. before reports a clamp at the start.
func (m *model) resolve(sel keys.KeySelector) (key []byte, before bool) {
	present := m.sorted()
	n := sort.Search(len(present), func(i int) bool {
		c := bytes.Compare(present[i], sel.Key)
		if sel.Inclusive {
			return c > 0
		}
		return c >= 0
	})
	pos := n - 1 + sel.Offset
	switch {
	case pos < 0:
		return []byte{}, true
	case pos >= len(present):
		return keys.KeyspaceEnd, false
	default:
		return present[pos], false
	}
}

// readRange is the reference range read over absolute keys.
func (m *model) readRange(begin, end []byte, opts keys.RangeOptions) []keys.KeyValue {
	var out []keys.KeyValue
	for _, k := range m.sorted() {
		if bytes.Compare(k, begin) >= 0 && bytes.Compare(k, end) < 0 {
			out = append(out, keys.KeyValue{Key: k, Value: m.data[string(k)]})
		}
	}
	if opts.Reverse {
		for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
			out[l], out[r] = out[r], out[l]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

var universe = [][]byte{{}, {0}, {0, 0}, {1}, {2}, {2, 0}, {3}, {4}, {4, 0, 0}, {5}}

func randomKey(rng *rand.Rand) []byte {
	return universe[rng.Intn(len(universe))]
}

func randomSpan(rng *rand.Rand) ([]byte, []byte) {
	a, b := randomKey(rng), randomKey(rng)
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a, b
}

// randomModel builds a database and a partially informed cache.
func randomModel(rng *rand.Rand) *model {
	m := newModel()
	for _, k := range universe {
		if rng.Intn(2) == 0 {
			m.put(k, []byte(fmt.Sprintf("v%x", k)))
		}
	}
	for step := rng.Intn(6); step > 0; step-- {
		switch rng.Intn(4) {
		case 0, 1:
			m.observe(randomSpan(rng))
		case 2:
			m.set(randomKey(rng), []byte("local"))
		case 3:
			m.clearRange(randomSpan(rng))
		}
	}
	return m
}

func randomSelector(rng *rand.Rand) keys.KeySelector {
	return keys.KeySelector{Key: randomKey(rng), Inclusive: rng.Intn(2) == 0, Offset: rng.Intn(7) - 3}
}

// --------------------------------------------------------------------------
// Point resolution
// --------------------------------------------------------------------------

// TestResolveUnknownCache checks that an empty cache returns the selector
// unchanged.
func TestResolveUnknownCache(t *testing.T) {
	index := NewIndex()

	for _, sel := range []keys.KeySelector{
		{Key: []byte{}, Inclusive: false, Offset: 1},
		{Key: []byte{}, Inclusive: true, Offset: 0},
		{Key: []byte{3}, Inclusive: true, Offset: -2},
		{Key: []byte{3}, Inclusive: false, Offset: 4},
	} {
		t.Run(sel.String(), func(t *testing.T) {
			r := Resolve(index, sel, keys.KeyspaceEnd)
			require.Equal(t, ResolvedPending, r.Kind)
			require.Equal(t, sel, r.Selector)
		})
	}
}

// TestResolveEmptyKeyBackward checks that nothing precedes the empty key.
func TestResolveEmptyKeyBackward(t *testing.T) {
	index := NewIndex()

	require.Equal(t, ResolvedOutOfRange, Resolve(index, keys.LastLessThan([]byte{}), keys.KeyspaceEnd).Kind)
	require.Equal(t, ResolvedOutOfRange, Resolve(index, keys.LastLessThan([]byte{}).Add(-2), keys.KeyspaceEnd).Kind)
}

// TestResolveKnown walks over a cache with known keys 1, 3 and 5 in the
// fully observed span [0, 9), where 3 is locally cleared and 7 locally set.
func TestResolveKnown(t *testing.T) {
	m := newModel()
	m.put([]byte{1}, []byte("a"))
	m.put([]byte{3}, []byte("b"))
	m.put([]byte{5}, []byte("c"))
	m.observe([]byte{0}, []byte{9})
	m.clearRange([]byte{3}, []byte{4})
	m.set([]byte{7}, []byte("d"))

	cases := []struct {
		sel    keys.KeySelector
		expect Resolution
	}{
		{keys.FirstGreaterOrEqual([]byte{1}), resolvedKey([]byte{1})},
		{keys.FirstGreaterThan([]byte{1}), resolvedKey([]byte{5})},
		{keys.FirstGreaterOrEqual([]byte{2}), resolvedKey([]byte{5})},
		{keys.FirstGreaterOrEqual([]byte{2}).Add(1), resolvedKey([]byte{7})},
		{keys.LastLessOrEqual([]byte{5}), resolvedKey([]byte{5})},
		{keys.LastLessThan([]byte{5}), resolvedKey([]byte{1})},
		{keys.LastLessOrEqual([]byte{8}).Add(-2), resolvedKey([]byte{1})},
		{keys.LastLessThan([]byte{1}), pending(keys.KeySelector{Key: []byte{0}, Inclusive: false, Offset: 0})},
		{keys.FirstGreaterThan([]byte{7}), pending(keys.KeySelector{Key: []byte{9}, Inclusive: false, Offset: 1})},
		{keys.FirstGreaterOrEqual([]byte{5}).Add(2), pending(keys.KeySelector{Key: []byte{9}, Inclusive: false, Offset: 1})},
		{keys.LastLessOrEqual([]byte{0}), pending(keys.LastLessThan([]byte{0}))},
	}

	for _, tc := range cases {
		t.Run(tc.sel.String(), func(t *testing.T) {
			require.Equal(t, tc.expect, Resolve(m.index, tc.sel, keys.KeyspaceEnd))
		})
	}
}

// TestResolveInclusiveSuccessor checks that an inclusive selector does not
// stop at an unknown interval that ends right after its key.
func TestResolveInclusiveSuccessor(t *testing.T) {
	m := newModel()
	m.put([]byte{2}, []byte("x"))
	m.observe([]byte{1, 0}, []byte{3})

	// [1, 1\x00) is unknown but holds only key 1 itself
	r := Resolve(m.index, keys.FirstGreaterThan([]byte{1}), keys.KeyspaceEnd)
	require.Equal(t, resolvedKey([]byte{2}), r)

	r = Resolve(m.index, keys.FirstGreaterOrEqual([]byte{1}), keys.KeyspaceEnd)
	require.Equal(t, pending(keys.FirstGreaterOrEqual([]byte{1})), r)
}

// TestResolvePastEnd checks the forward walk off the known keyspace.
func TestResolvePastEnd(t *testing.T) {
	m := newModel()
	m.clearRange([]byte{}, []byte{0xff, 0xff})

	r := Resolve(m.index, keys.FirstGreaterOrEqual([]byte{}), keys.KeyspaceEnd)
	require.Equal(t, pending(keys.FirstGreaterOrEqual(keys.KeyspaceEnd)), r)
	require.True(t, pastEnd(r.Selector, keys.KeyspaceEnd))

	require.Equal(t, ResolvedOutOfRange, Resolve(m.index, keys.LastLessOrEqual([]byte{5}), keys.KeyspaceEnd).Kind)
}

// TestResolveAgainstModel checks, for random databases and caches, that every
// resolution agrees with resolving the selector against the database itself.
func TestResolveAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 300; round++ {
		m := randomModel(rng)

		for i := 0; i < 40; i++ {
			sel := randomSelector(rng)
			want, before := m.resolve(sel)
			r := Resolve(m.index, sel, keys.KeyspaceEnd)

			switch r.Kind {
			case ResolvedKey:
				require.Equal(t, want, r.Key, "round %d %s -> %s (index %s)", round, sel, r, m.index)
				require.False(t, before)
			case ResolvedOutOfRange:
				require.True(t, before, "round %d %s -> %s (index %s)", round, sel, r, m.index)
			case ResolvedPending:
				got, gotBefore := m.resolve(r.Selector)
				require.Equal(t, want, got, "round %d %s -> %s (index %s)", round, sel, r, m.index)
				require.Equal(t, before, gotBefore)
			default:
				t.Fatalf("invalid resolution %v", r)
			}
		}
	}
}
