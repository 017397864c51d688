package txcache

import (
	"bytes"
	"slices"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/rangeindex"
)

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// MutationKind tags a Mutation.
type MutationKind uint8

const (
	MutationSet   MutationKind = iota + 1 // replaces the value
	MutationClear                         // removes the key
)

// Mutation is a pending local write: Set(value) or Clear.
// Both kinds are independent: the result does not depend on the prior value.
type Mutation struct {
	Kind  MutationKind
	Value []byte
}

// SetMutation returns Set(value).
func SetMutation(value []byte) Mutation {
	return Mutation{Kind: MutationSet, Value: value}
}

// ClearMutation returns Clear.
func ClearMutation() Mutation {
	return Mutation{Kind: MutationClear}
}

// Independent reports whether the mutation fully determines the result.
func (m Mutation) Independent() bool {
	return m.Kind == MutationSet || m.Kind == MutationClear
}

// Apply applies the mutation to a value. exists is false for an absent key.
func (m Mutation) Apply(value []byte, exists bool) ([]byte, bool) {
	switch m.Kind {
	case MutationSet:
		return m.Value, true
	case MutationClear:
		return nil, false
	default:
		return value, exists
	}
}

// ApplyMutations reduces the mutations left to right over the base value.
func ApplyMutations(value []byte, exists bool, mutations []Mutation) ([]byte, bool) {
	for _, m := range mutations {
		value, exists = m.Apply(value, exists)
	}
	return value, exists
}

func hasIndependent(mutations []Mutation) bool {
	return slices.ContainsFunc(mutations, Mutation.Independent)
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Class is the classification of an Entry.
type Class uint8

const (
	ClassUnknown Class = iota // never observed, no independent mutation
	ClassEmpty                // known, effective value absent
	ClassValue                // known, effective value present
)

func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassValue:
		return "value"
	default:
		return "unknown"
	}
}

// Entry is the cache state of one interval of a transaction's index.
//
// Entries are values: every update produces a new Entry, so a caller that
// read an Entry keeps a stable view of it.
type Entry struct {
	Base       []byte // observed value, only meaningful if Observed
	BaseExists bool   // the key existed when observed
	Observed   bool   // the backend state of the interval has been observed

	Mutations []Mutation // pending local writes, in order

	ReadConflict  bool
	WriteConflict bool

	fetch *fetch // in-flight point fetch, if any
	id    uint64 // identity of a present key, keeps neighbouring keys apart
}

// IsKnown reports whether the effective value is determined without asking
// the backend.
func (e Entry) IsKnown() bool {
	return e.Observed || hasIndependent(e.Mutations)
}

// Effective returns the base value with all mutations applied.
func (e Entry) Effective() ([]byte, bool) {
	return ApplyMutations(e.Base, e.Observed && e.BaseExists, e.Mutations)
}

// IsValue reports whether the entry is known and holds a value.
func (e Entry) IsValue() bool {
	if !e.IsKnown() {
		return false
	}
	_, ok := e.Effective()
	return ok
}

// IsEmpty reports whether the entry is known and holds no value.
func (e Entry) IsEmpty() bool {
	if !e.IsKnown() {
		return false
	}
	_, ok := e.Effective()
	return !ok
}

// Class classifies the entry.
func (e Entry) Class() Class {
	switch {
	case !e.IsKnown():
		return ClassUnknown
	case e.IsValue():
		return ClassValue
	default:
		return ClassEmpty
	}
}

// Fetching reports whether a point fetch is in flight for this entry.
func (e Entry) Fetching() bool {
	return e.fetch != nil
}

// Equal is the coalescing predicate of the index.
func (e Entry) Equal(o Entry) bool {
	return e.id == o.id &&
		e.fetch == o.fetch &&
		e.Observed == o.Observed &&
		e.BaseExists == o.BaseExists &&
		bytes.Equal(e.Base, o.Base) &&
		e.ReadConflict == o.ReadConflict &&
		e.WriteConflict == o.WriteConflict &&
		slices.EqualFunc(e.Mutations, o.Mutations, func(a, b Mutation) bool {
			return a.Kind == b.Kind && bytes.Equal(a.Value, b.Value)
		})
}

// --------------------------------------------------------------------------
// Index and updates
// --------------------------------------------------------------------------

// Update is a range-wise update applied to every overlapped Entry.
type Update func(Entry) Entry

// Index is the interval map holding a transaction's cache.
type Index = rangeindex.RangeIndex[Entry, Update]

// NewIndex returns an index where the whole keyspace is unknown.
func NewIndex() *Index {
	return rangeindex.New[Entry, Update](Entry{}, func(e Entry, u Update) Entry { return u(e) }, Entry.Equal)
}

func setReadConflict(e Entry) Entry {
	// reads of locally written keys do not depend on remote state
	e.ReadConflict = e.ReadConflict || len(e.Mutations) == 0
	return e
}

func setWriteConflict(e Entry) Entry {
	e.WriteConflict = true
	return e
}

func setFetch(f *fetch) Update {
	return func(e Entry) Entry {
		if e.fetch != nil {
			panic("txcache: fetch registered twice for the same key")
		}
		e.fetch = f
		return e
	}
}

func clearFetch(f *fetch) Update {
	return func(e Entry) Entry {
		if e.fetch == f {
			e.fetch = nil
		}
		return e
	}
}

// setBase records an observed point value. Entries with local mutations or
// an earlier observation keep what they have.
func setBase(value []byte, exists bool, id uint64, f *fetch) Update {
	return func(e Entry) Entry {
		if f != nil && e.fetch == f {
			e.fetch = nil
		}
		if e.Observed || len(e.Mutations) > 0 {
			return e
		}
		e.Observed = true
		e.BaseExists = exists
		e.Base = nil
		e.id = 0
		if exists {
			e.Base = keys.Clone(value)
			e.id = id
		}
		return e
	}
}

// fillAbsent marks still unknown entries as observed and absent.
func fillAbsent(e Entry) Entry {
	if e.IsKnown() {
		return e
	}
	e.Observed = true
	e.BaseExists = false
	e.Base = nil
	return e
}

func addMutation(m Mutation, id uint64) Update {
	return func(e Entry) Entry {
		if m.Independent() || len(e.Mutations) == 0 {
			e.Mutations = []Mutation{m}
		} else {
			e.Mutations = append(slices.Clip(e.Mutations), m)
		}
		e.id = 0
		if m.Kind == MutationSet {
			e.id = id
		}
		return e
	}
}
