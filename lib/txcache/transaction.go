package txcache

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

// fetch is the one-shot handle of an in-flight point read. done is closed
// once the other fields are final.
type fetch struct {
	done   chan struct{}
	value  []byte
	exists bool
	err    error
}

// Option configures a Transaction.
type Option func(*Transaction)

// WithKeyspaceEnd sets the exclusive end of the keyspace the transaction may
// read, for example the NamespaceEnd of a prefix. Defaults to keys.KeyspaceEnd.
func WithKeyspaceEnd(end []byte) Option {
	return func(t *Transaction) {
		t.keyspaceEnd = keys.Clone(end)
	}
}

// WithLogger replaces the package logger for one transaction.
func WithLogger(l logger.ILogger) Option {
	return func(t *Transaction) {
		t.log = l
	}
}

// Transaction is the cached client side of a single database transaction.
//
// Thread-safety: All methods are safe for concurrent use. Index updates are
// serialized by a mutex that is never held during a backend call.
type Transaction struct {
	mu          sync.Mutex
	index       *Index
	backend     Backend
	keyspaceEnd []byte
	lastID      uint64
	done        bool
	log         logger.ILogger
}

// NewTransaction creates a transaction with an empty cache in front of backend.
func NewTransaction(backend Backend, opts ...Option) *Transaction {
	t := &Transaction{
		index:       NewIndex(),
		backend:     backend,
		keyspaceEnd: keys.KeyspaceEnd,
		log:         Logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// nextID must be called with mu held.
func (t *Transaction) nextID() uint64 {
	t.lastID++
	return t.lastID
}

// lock acquires mu unless the transaction is finished.
func (t *Transaction) lock() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTransactionDone
	}
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the value of key. exists is false if the key is absent.
//
// The result combines the pending local writes at the time of the call with
// the backend state. Concurrent Gets of a key that is not cached share a single
// backend read. Unless snapshot is set the key is added to the read conflict
// ranges.
func (t *Transaction) Get(ctx context.Context, key []byte, snapshot bool) (value []byte, exists bool, err error) {
	if err := t.lock(); err != nil {
		return nil, false, err
	}

	entry := t.index.Get(key)
	mutations := entry.Mutations

	if hasIndependent(mutations) {
		t.mu.Unlock()
		getHits.Inc()
		value, exists = ApplyMutations(nil, false, mutations)
		return keys.Clone(value), exists, nil
	}

	end := keys.Successor(key)

	if entry.Observed {
		if !snapshot {
			t.index.AddRange(key, end, setReadConflict)
		}
		t.mu.Unlock()
		getHits.Inc()
		value, exists = ApplyMutations(entry.Base, entry.BaseExists, mutations)
		return keys.Clone(value), exists, nil
	}

	f := entry.fetch
	if f == nil {
		f = &fetch{done: make(chan struct{})}
		t.index.AddRange(key, end, setFetch(f))
		getMisses.Inc()
		go t.runFetch(context.WithoutCancel(ctx), keys.Clone(key), f)
	} else {
		getDeduped.Inc()
	}
	t.mu.Unlock()

	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if f.err != nil {
		return nil, false, f.err
	}

	if !snapshot {
		t.mu.Lock()
		t.index.AddRange(key, end, setReadConflict)
		t.mu.Unlock()
	}

	value, exists = ApplyMutations(f.value, f.exists, mutations)
	return keys.Clone(value), exists, nil
}

// runFetch reads key from the backend and settles f.
func (t *Transaction) runFetch(ctx context.Context, key []byte, f *fetch) {
	defer close(f.done)

	backendCalls.Inc()
	value, exists, err := t.backend.Get(ctx, key)
	t.log.Debugf("fetched %q from backend (exists=%t err=%v)", key, exists, err)

	t.mu.Lock()
	defer t.mu.Unlock()

	end := keys.Successor(key)

	if err != nil {
		backendErrors.Inc()
		f.err = fmt.Errorf("get %q: %w", key, err)
		t.index.AddRange(key, end, clearFetch(f))
		return
	}
	if err := t.checkPoint(key, value, exists); err != nil {
		f.err = err
		t.index.AddRange(key, end, clearFetch(f))
		return
	}

	f.value, f.exists = value, exists
	t.index.AddRange(key, end, setBase(value, exists, t.nextID(), f))
}

// checkPoint verifies a backend answer for key against an earlier observation.
// It must be called with mu held.
func (t *Transaction) checkPoint(key, value []byte, exists bool) error {
	entry := t.index.Get(key)
	if !entry.Observed || len(entry.Mutations) > 0 {
		return nil
	}
	if entry.BaseExists == exists && (!exists || bytes.Equal(entry.Base, value)) {
		return nil
	}
	return t.inconsistent(key)
}

func (t *Transaction) inconsistent(key []byte) error {
	inconsistent.Inc()
	t.log.Warningf("inconsistent read of %q", key)
	return fmt.Errorf("%w: key %q", ErrInconsistentRead, key)
}

// GetKey resolves a key selector. Selectors that walk off the keyspace are
// clamped to "" and the keyspace end. Unless snapshot is set the range the
// answer depends on is added to the read conflict ranges.
func (t *Transaction) GetKey(ctx context.Context, sel keys.KeySelector, snapshot bool) ([]byte, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	r := Resolve(t.index, sel, t.keyspaceEnd)
	t.mu.Unlock()

	key, ok := t.localKey(r)
	if ok {
		getKeyHits.Inc()
	} else {
		getKeyMisses.Inc()
		var err error
		if key, err = t.remoteKey(ctx, r.Selector); err != nil {
			return nil, err
		}
	}

	if !snapshot {
		t.mu.Lock()
		t.addSelectorConflict(sel, key)
		t.mu.Unlock()
	}

	return keys.Clone(key), nil
}

// localKey returns the absolute key of r if it is known without the backend.
func (t *Transaction) localKey(r Resolution) ([]byte, bool) {
	switch r.Kind {
	case ResolvedKey:
		return r.Key, true
	case ResolvedOutOfRange:
		return []byte{}, true
	case ResolvedPending:
		if pastEnd(r.Selector, t.keyspaceEnd) {
			return t.keyspaceEnd, true
		}
	}
	return nil, false
}

func (t *Transaction) remoteKey(ctx context.Context, sel keys.KeySelector) ([]byte, error) {
	backendCalls.Inc()
	key, err := t.backend.GetKey(ctx, sel)
	if err != nil {
		backendErrors.Inc()
		return nil, fmt.Errorf("get key %s: %w", sel, err)
	}
	return key, nil
}

// addSelectorConflict adds the range between the selector's reference key
// and its result. It must be called with mu held.
func (t *Transaction) addSelectorConflict(sel keys.KeySelector, result []byte) {
	a, b := result, sel.ConflictBase()
	if sel.Offset > 0 {
		a, b = sel.ConflictBase(), keys.Successor(result)
	}
	t.index.AddRange(keys.Min(a, b), keys.Max(a, b), setReadConflict)
}

// GetRange reads the pairs between two key selectors in the order given by
// opts.Reverse, returning at most opts.Limit pairs (all if zero).
//
// Pairs the cache already knows are served locally; only the unknown middle
// part of the range is read from the backend, page by page. Unless
// opts.Snapshot is set, the range the result depends on is added to the read
// conflict ranges.
func (t *Transaction) GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error) {
	if err := t.lock(); err != nil {
		return keys.RangeResult{}, err
	}
	rr := ResolveRange(t.index, begin, end, opts, t.keyspaceEnd)
	t.mu.Unlock()

	if rr.Empty && rr.Begin.Kind == 0 {
		rangeHits.Inc()
		return keys.RangeResult{}, nil
	}

	if rr.Empty {
		rangeHits.Inc()
		if !opts.Snapshot {
			t.mu.Lock()
			if key, ok := t.localKey(rr.Begin); ok {
				t.addSelectorConflict(begin, key)
			}
			if key, ok := t.localKey(rr.End); ok {
				t.addSelectorConflict(end, key)
			}
			t.mu.Unlock()
		}
		return keys.RangeResult{}, nil
	}

	beginKey, endKey, remote, err := t.resolveEnds(ctx, rr)
	if err != nil {
		return keys.RangeResult{}, err
	}

	var result keys.RangeResult
	if bytes.Compare(beginKey, endKey) < 0 {
		h := rr.Harvest
		if h == nil {
			t.mu.Lock()
			h = HarvestRange(t.index, beginKey, endKey, opts)
			t.mu.Unlock()
		}

		result, err = t.readHarvest(ctx, h, opts)
		if err != nil {
			return keys.RangeResult{}, err
		}
		remote = remote || h.Gap != nil
	}

	if remote {
		rangeMisses.Inc()
	} else {
		rangeHits.Inc()
	}

	if !opts.Snapshot {
		t.mu.Lock()
		t.addSelectorConflict(begin, beginKey)
		t.addSelectorConflict(end, endKey)
		t.addRangeConflict(beginKey, endKey, result, opts)
		t.mu.Unlock()
	}

	for i, kv := range result.KVs {
		result.KVs[i] = keys.KeyValue{Key: keys.Clone(kv.Key), Value: keys.Clone(kv.Value)}
	}
	return result, nil
}

// resolveEnds turns both ends of rr into absolute keys, asking the backend
// concurrently for the ends the cache cannot resolve.
func (t *Transaction) resolveEnds(ctx context.Context, rr RangeResolution) (begin, end []byte, remote bool, err error) {
	begin, beginOK := t.localKey(rr.Begin)
	end, endOK := t.localKey(rr.End)
	if beginOK && endOK {
		return begin, end, false, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if !beginOK {
		g.Go(func() (err error) {
			begin, err = t.remoteKey(gctx, rr.Begin.Selector)
			return err
		})
	}
	if !endOK {
		g.Go(func() (err error) {
			end, err = t.remoteKey(gctx, rr.End.Selector)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, true, err
	}
	return begin, end, true, nil
}

// readHarvest completes a harvest: it reads the gap from the backend, records
// what was observed and assembles the result in read order.
func (t *Transaction) readHarvest(ctx context.Context, h *Harvest, opts keys.RangeOptions) (keys.RangeResult, error) {
	harvestedPairs.Add(len(h.Prefix) + len(h.Suffix))

	kvs := append([]keys.KeyValue(nil), h.Prefix...)
	if h.Gap == nil {
		return keys.RangeResult{KVs: kvs, More: h.More}, nil
	}

	limit := 0
	if opts.Limit > 0 {
		limit = opts.Limit - len(h.Prefix)
	}

	gapKVs, more, err := t.readGap(ctx, *h.Gap, opts.Reverse, limit)
	if err != nil {
		return keys.RangeResult{}, err
	}
	if err := t.recordGap(*h.Gap, gapKVs, more, opts.Reverse); err != nil {
		return keys.RangeResult{}, err
	}

	kvs = append(kvs, gapKVs...)
	if more {
		return keys.RangeResult{KVs: kvs, More: true}, nil
	}

	kvs = append(kvs, h.Suffix...)
	if opts.Limit > 0 && len(kvs) > opts.Limit {
		return keys.RangeResult{KVs: kvs[:opts.Limit], More: true}, nil
	}
	return keys.RangeResult{KVs: kvs}, nil
}

// readGap reads [gap.Begin, gap.End) from the backend until it is exhausted
// or limit pairs were read. more reports that the read stopped at the limit.
func (t *Transaction) readGap(ctx context.Context, gap keys.KeyRange, reverse bool, limit int) (kvs []keys.KeyValue, more bool, err error) {
	begin := keys.FirstGreaterOrEqual(gap.Begin)
	end := keys.FirstGreaterOrEqual(gap.End)
	remaining := limit

	for {
		backendCalls.Inc()
		page, err := t.backend.GetRange(ctx, begin, end, keys.RangeOptions{Limit: remaining, Reverse: reverse})
		if err != nil {
			backendErrors.Inc()
			return nil, false, fmt.Errorf("get range [%q, %q): %w", gap.Begin, gap.End, err)
		}
		kvs = append(kvs, page.KVs...)

		if !page.More || len(page.KVs) == 0 {
			return kvs, false, nil
		}

		last := page.KVs[len(page.KVs)-1].Key
		if reverse {
			end = keys.FirstGreaterOrEqual(last)
		} else {
			begin = keys.FirstGreaterThan(last)
		}

		if limit > 0 {
			remaining -= len(page.KVs)
			if remaining <= 0 {
				return kvs, true, nil
			}
		}
	}
}

// recordGap stores the result of a gap read in the index: the returned keys
// as observed values, everything else that was scanned as observed absent.
func (t *Transaction) recordGap(gap keys.KeyRange, kvs []keys.KeyValue, partial, reverse bool) error {
	scanned := gap
	if partial && len(kvs) > 0 {
		last := kvs[len(kvs)-1].Key
		if reverse {
			scanned.Begin = last
		} else {
			scanned.End = keys.Successor(last)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	returned := make(map[string]struct{}, len(kvs))
	for _, kv := range kvs {
		if err := t.checkPoint(kv.Key, kv.Value, true); err != nil {
			return err
		}
		returned[string(kv.Key)] = struct{}{}
	}
	for _, s := range spans(t.index, scanned.Begin, scanned.End) {
		if s.present == nil || !s.entry.Observed || len(s.entry.Mutations) > 0 {
			continue
		}
		if _, ok := returned[string(s.present)]; !ok {
			return t.inconsistent(s.present)
		}
	}

	for _, kv := range kvs {
		t.index.AddRange(kv.Key, keys.Successor(kv.Key), setBase(kv.Value, true, t.nextID(), nil))
	}
	t.index.AddRange(scanned.Begin, scanned.End, fillAbsent)

	return nil
}

// addRangeConflict adds the part of [begin, end) the result depends on. It
// must be called with mu held.
func (t *Transaction) addRangeConflict(begin, end []byte, result keys.RangeResult, opts keys.RangeOptions) {
	if bytes.Compare(begin, end) >= 0 {
		return
	}
	if result.More && len(result.KVs) > 0 {
		last := result.KVs[len(result.KVs)-1].Key
		if opts.Reverse {
			begin = last
		} else {
			end = keys.Successor(last)
		}
	}
	t.index.AddRange(begin, end, setReadConflict)
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Set writes value to key.
func (t *Transaction) Set(ctx context.Context, key, value []byte) error {
	if err := t.mutate(key, keys.Successor(key), SetMutation(keys.Clone(value))); err != nil {
		return err
	}
	if err := t.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Clear removes key.
func (t *Transaction) Clear(ctx context.Context, key []byte) error {
	if err := t.mutate(key, keys.Successor(key), ClearMutation()); err != nil {
		return err
	}
	if err := t.backend.Clear(ctx, key); err != nil {
		return fmt.Errorf("clear %q: %w", key, err)
	}
	return nil
}

// ClearRange removes every key in [begin, end). It is a no-op if begin >= end.
func (t *Transaction) ClearRange(ctx context.Context, begin, end []byte) error {
	if bytes.Compare(begin, end) >= 0 {
		return nil
	}
	if err := t.mutate(begin, end, ClearMutation()); err != nil {
		return err
	}
	if err := t.backend.ClearRange(ctx, begin, end); err != nil {
		return fmt.Errorf("clear range [%q, %q): %w", begin, end, err)
	}
	return nil
}

// mutate records m over [begin, end) and marks the span as written.
func (t *Transaction) mutate(begin, end []byte, m Mutation) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.index.AddRange(begin, end, addMutation(m, t.nextID()))
	t.index.AddRange(begin, end, setWriteConflict)
	return nil
}

// --------------------------------------------------------------------------
// Conflict ranges
// --------------------------------------------------------------------------

// AddReadConflictRange adds [begin, end) to the read conflict ranges.
func (t *Transaction) AddReadConflictRange(begin, end []byte) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.index.AddRange(begin, end, setReadConflict)
	return nil
}

// AddWriteConflictRange adds [begin, end) to the write conflict ranges.
func (t *Transaction) AddWriteConflictRange(begin, end []byte) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.index.AddRange(begin, end, setWriteConflict)
	return nil
}

// ReadConflictRanges returns the coalesced read conflict ranges.
func (t *Transaction) ReadConflictRanges() []keys.KeyRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conflictRanges(func(e Entry) bool { return e.ReadConflict })
}

// WriteConflictRanges returns the coalesced write conflict ranges.
func (t *Transaction) WriteConflictRanges() []keys.KeyRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conflictRanges(func(e Entry) bool { return e.WriteConflict })
}

// conflictRanges must be called with mu held.
func (t *Transaction) conflictRanges(flagged func(Entry) bool) []keys.KeyRange {
	var ranges []keys.KeyRange

	for i := 0; i < t.index.Len(); i++ {
		begin, entry := t.index.At(i)
		if !flagged(entry) {
			continue
		}

		end := t.index.UpperBound(i)
		if end == nil {
			end = keys.Max(t.keyspaceEnd, keys.Successor(begin))
		}

		if n := len(ranges); n > 0 && bytes.Equal(ranges[n-1].End, begin) {
			ranges[n-1].End = keys.Clone(end)
			continue
		}
		ranges = append(ranges, keys.KeyRange{Begin: keys.Clone(begin), End: keys.Clone(end)})
	}

	return ranges
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Commit sends the conflict ranges to the backend and commits it if the
// backend implements Committer. The transaction cannot be used afterwards,
// even if Commit fails.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.lock(); err != nil {
		return err
	}
	t.done = true
	reads := t.conflictRanges(func(e Entry) bool { return e.ReadConflict })
	writes := t.conflictRanges(func(e Entry) bool { return e.WriteConflict })
	t.mu.Unlock()

	t.log.Debugf("committing with %d read and %d write conflict ranges", len(reads), len(writes))

	for _, r := range reads {
		if err := t.backend.AddReadConflictRange(ctx, r.Begin, r.End); err != nil {
			return fmt.Errorf("add read conflict range [%q, %q): %w", r.Begin, r.End, err)
		}
	}
	for _, r := range writes {
		if err := t.backend.AddWriteConflictRange(ctx, r.Begin, r.End); err != nil {
			return fmt.Errorf("add write conflict range [%q, %q): %w", r.Begin, r.End, err)
		}
	}

	if c, ok := t.backend.(Committer); ok {
		if err := c.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return nil
}

// Abort discards the transaction and releases the backend if it implements
// Aborter.
func (t *Transaction) Abort(ctx context.Context) error {
	if err := t.lock(); err != nil {
		return err
	}
	t.done = true
	t.mu.Unlock()

	if a, ok := t.backend.(Aborter); ok {
		if err := a.Abort(ctx); err != nil {
			return fmt.Errorf("abort: %w", err)
		}
	}
	return nil
}
