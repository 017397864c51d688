package txcache

import (
	"bytes"

	"github.com/ValentinKolb/txcache/lib/keys"
)

// RangeResolution is the outcome of resolving both ends of a range read.
//
// Exactly one of the following holds:
//   - Empty is set: the range holds no keys.
//   - Harvest is set: both ends resolved to absolute keys and the cached part
//     of the range has been collected.
//   - Otherwise at least one end is Pending and Residual returns the
//     selectors to resolve through the backend.
type RangeResolution struct {
	Begin   Resolution
	End     Resolution
	Empty   bool
	Harvest *Harvest
}

// Residual returns the selectors for both ends: the Pending selector for an
// unresolved end, FirstGreaterOrEqual for a resolved one.
func (r RangeResolution) Residual() (begin, end keys.KeySelector) {
	return residual(r.Begin), residual(r.End)
}

func residual(r Resolution) keys.KeySelector {
	if r.Kind == ResolvedPending {
		return r.Selector
	}
	return keys.FirstGreaterOrEqual(r.Key)
}

// Harvest holds the pairs of [Begin, End) served from the cache.
//
// Prefix is the run of cached pairs at the start of the read order, Suffix
// the run at its end, both in read order. Gap, if set, is the part between
// them that still has to be read from the backend; the final result is
// Prefix, then the gap's pairs, then Suffix, cut to the limit.
type Harvest struct {
	Begin  []byte
	End    []byte
	Prefix []keys.KeyValue
	Suffix []keys.KeyValue
	Gap    *keys.KeyRange
	More   bool // the limit was reached inside the cached prefix
}

// emptyRange reports whether a range read between the two selectors is empty
// regardless of the data: the begin anchor is never before the end anchor
// and the begin offset is not smaller.
func emptyRange(begin, end keys.KeySelector) bool {
	if begin.Offset < end.Offset {
		return false
	}
	switch cmp := bytes.Compare(begin.Key, end.Key); {
	case cmp > 0:
		return true
	case cmp == 0:
		return begin.Inclusive || !end.Inclusive
	default:
		return false
	}
}

// ResolveRange resolves the selectors of a range read against the index and,
// if both ends are absolute, harvests the cached pairs in between.
func ResolveRange(index *Index, begin, end keys.KeySelector, opts keys.RangeOptions, keyspaceEnd []byte) RangeResolution {
	if emptyRange(begin, end) {
		return RangeResolution{Empty: true}
	}

	r := RangeResolution{
		Begin: Resolve(index, begin, keyspaceEnd),
		End:   Resolve(index, end, keyspaceEnd),
	}

	if r.End.Kind == ResolvedOutOfRange {
		r.Empty = true
		return r
	}
	if r.Begin.Kind == ResolvedOutOfRange {
		r.Begin = resolvedKey([]byte{})
	}
	if r.Begin.Kind == ResolvedPending && pastEnd(r.Begin.Selector, keyspaceEnd) {
		r.Empty = true
		return r
	}
	if r.End.Kind == ResolvedPending && pastEnd(r.End.Selector, keyspaceEnd) {
		r.End = resolvedKey(keyspaceEnd)
	}

	if r.Begin.Kind == ResolvedKey && r.End.Kind == ResolvedKey {
		if bytes.Compare(r.Begin.Key, r.End.Key) >= 0 {
			r.Empty = true
			return r
		}
		r.Harvest = HarvestRange(index, r.Begin.Key, r.End.Key, opts)
	}

	return r
}

// --------------------------------------------------------------------------
// Harvesting
// --------------------------------------------------------------------------

// span is one interval of the index clipped to a read range.
type span struct {
	begin, end []byte
	class      Class
	present    []byte // the present key of a value interval inside the range
	entry      Entry
}

// spans returns the intervals tiling [begin, end) in ascending order.
func spans(index *Index, begin, end []byte) []span {
	var out []span

	for i := index.IndexOf(begin); i < index.Len(); i++ {
		boundary, entry := index.At(i)
		if len(out) > 0 && bytes.Compare(boundary, end) >= 0 {
			break
		}

		s := span{begin: keys.Max(boundary, begin), end: end, class: entry.Class(), entry: entry}
		if upper := index.UpperBound(i); upper != nil && bytes.Compare(upper, end) < 0 {
			s.end = upper
		}
		if s.class == ClassValue && bytes.Compare(boundary, begin) >= 0 {
			s.present = boundary
		}
		out = append(out, s)
	}

	return out
}

func (s span) pair() keys.KeyValue {
	value, _ := s.entry.Effective()
	return keys.KeyValue{Key: s.present, Value: value}
}

// HarvestRange collects the cached pairs of [begin, end) in read order.
// See Harvest for the shape of the result. begin must be less than end.
func HarvestRange(index *Index, begin, end []byte, opts keys.RangeOptions) *Harvest {
	h := &Harvest{Begin: begin, End: end}
	all := spans(index, begin, end)
	n := len(all)

	// at(k) is the k-th span in read order
	at := func(k int) span {
		if opts.Reverse {
			return all[n-1-k]
		}
		return all[k]
	}

	first := n
	for k := 0; k < n; k++ {
		s := at(k)
		if s.class == ClassUnknown {
			first = k
			break
		}
		if s.present == nil {
			continue
		}
		h.Prefix = append(h.Prefix, s.pair())
		if opts.Limit > 0 && len(h.Prefix) == opts.Limit {
			h.More = mayHoldKeys(at, k+1, n)
			return h
		}
	}
	if first == n {
		return h
	}

	last := first
	var suffix []keys.KeyValue
	for k := n - 1; k > first; k-- {
		s := at(k)
		if s.class == ClassUnknown {
			last = k
			break
		}
		if s.present != nil {
			suffix = append(suffix, s.pair())
		}
	}

	// suffix was collected backwards, restore read order
	for l, r := 0, len(suffix)-1; l < r; l, r = l+1, r-1 {
		suffix[l], suffix[r] = suffix[r], suffix[l]
	}
	if opts.Limit > 0 && len(suffix) > opts.Limit-len(h.Prefix) {
		suffix = suffix[:opts.Limit-len(h.Prefix)]
	}
	h.Suffix = suffix

	lo, hi := at(first), at(last)
	if opts.Reverse {
		lo, hi = hi, lo
	}
	h.Gap = &keys.KeyRange{Begin: lo.begin, End: hi.end}

	return h
}

func mayHoldKeys(at func(int) span, from, n int) bool {
	for k := from; k < n; k++ {
		if s := at(k); s.class == ClassUnknown || s.present != nil {
			return true
		}
	}
	return false
}
