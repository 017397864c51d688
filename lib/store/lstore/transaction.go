package lstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
)

// --------------------------------------------------------------------------
// Write log
// --------------------------------------------------------------------------

type mutationKind uint8

const (
	mutationSet mutationKind = iota + 1
	mutationClear
	mutationClearRange
)

// mutation is one buffered write. end is only used by mutationClearRange.
type mutation struct {
	kind  mutationKind
	key   []byte
	end   []byte
	value []byte
}

func (m mutation) apply(database db.KVDB, writeIndex uint64) {
	switch m.kind {
	case mutationSet:
		database.Set(m.key, m.value, writeIndex)
	case mutationClear:
		database.Delete(m.key, writeIndex)
	case mutationClearRange:
		database.DeleteRange(m.key, m.end, writeIndex)
	}
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// transaction reads from a private clone of the database taken when it was
// opened. Writes go to the clone as well as to the write log, which is
// replayed onto the database on commit.
//
// Thread-safety: All methods are safe for concurrent use and serialized by mu.
type transaction struct {
	mu          sync.Mutex
	store       *storeImpl
	view        db.KVDB
	readVersion uint64
	log         []mutation
	reads       []keys.KeyRange
	writes      []keys.KeyRange
	closed      bool
}

// lock acquires mu unless the transaction is closed.
func (t *transaction) lock() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return store.ErrTransactionClosed
	}
	return nil
}

func illegalKey(key []byte) error {
	return store.NewError(store.RetCIllegalKey, fmt.Sprintf("key %q outside legal range", key))
}

// checkSelector rejects selectors anchored inside the system keyspace. The
// keyspace end itself is a valid anchor.
func checkSelector(sel keys.KeySelector) error {
	if len(sel.Key) > 1 && sel.Key[0] == 0xff {
		return illegalKey(sel.Key)
	}
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (t *transaction) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	if err := t.lock(); err != nil {
		return nil, false, err
	}
	defer t.mu.Unlock()

	value, ok := t.view.Get(key)
	return value, ok, nil
}

func (t *transaction) GetKey(_ context.Context, sel keys.KeySelector) ([]byte, error) {
	if err := checkSelector(sel); err != nil {
		return nil, err
	}
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	return t.resolve(sel), nil
}

// resolve finds the key sel points to, clamped to ["", "\xff"]. It must be
// called with mu held.
func (t *transaction) resolve(sel keys.KeySelector) []byte {
	var found []byte
	count := func(target int) db.Visitor {
		n := 0
		return func(key, _ []byte) bool {
			n++
			if n == target {
				found = keys.Clone(key)
				return false
			}
			return true
		}
	}

	if sel.Offset > 0 {
		// the Offset-th key > Key (inclusive) or >= Key (exclusive)
		from := sel.Key
		if sel.Inclusive {
			from = keys.Successor(sel.Key)
		}
		t.view.Ascend(from, keys.KeyspaceEnd, count(sel.Offset))
		if found == nil {
			return keys.Clone(keys.KeyspaceEnd)
		}
		return found
	}

	// the (1-Offset)-th key <= Key (inclusive) or < Key (exclusive)
	to := sel.Key
	if sel.Inclusive {
		to = keys.Successor(sel.Key)
	}
	t.view.Descend([]byte{}, keys.Min(to, keys.KeyspaceEnd), count(1-sel.Offset))
	if found == nil {
		return []byte{}
	}
	return found
}

func (t *transaction) GetRange(_ context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error) {
	if err := checkSelector(begin); err != nil {
		return keys.RangeResult{}, err
	}
	if err := checkSelector(end); err != nil {
		return keys.RangeResult{}, err
	}
	if err := t.lock(); err != nil {
		return keys.RangeResult{}, err
	}
	defer t.mu.Unlock()

	b, e := t.resolve(begin), t.resolve(end)
	if bytes.Compare(b, e) >= 0 {
		return keys.RangeResult{}, nil
	}

	var result keys.RangeResult
	visit := func(key, value []byte) bool {
		if opts.Limit > 0 && len(result.KVs) == opts.Limit {
			result.More = true
			return false
		}
		result.KVs = append(result.KVs, keys.KeyValue{Key: keys.Clone(key), Value: keys.Clone(value)})
		return true
	}

	if opts.Reverse {
		t.view.Descend(b, e, visit)
	} else {
		t.view.Ascend(b, e, visit)
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (t *transaction) Set(_ context.Context, key, value []byte) error {
	if !keys.IsUserKey(key) {
		return illegalKey(key)
	}
	return t.write(mutation{kind: mutationSet, key: keys.Clone(key), value: keys.Clone(value)})
}

func (t *transaction) Clear(_ context.Context, key []byte) error {
	if !keys.IsUserKey(key) {
		return illegalKey(key)
	}
	return t.write(mutation{kind: mutationClear, key: keys.Clone(key)})
}

func (t *transaction) ClearRange(_ context.Context, begin, end []byte) error {
	if !keys.IsUserKey(begin) {
		return illegalKey(begin)
	}
	if bytes.Compare(end, keys.KeyspaceEnd) > 0 {
		return illegalKey(end)
	}
	if bytes.Compare(begin, end) >= 0 {
		return nil
	}
	return t.write(mutation{kind: mutationClearRange, key: keys.Clone(begin), end: keys.Clone(end)})
}

func (t *transaction) write(m mutation) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	m.apply(t.view, t.readVersion)
	t.log = append(t.log, m)
	return nil
}

// --------------------------------------------------------------------------
// Conflict ranges
// --------------------------------------------------------------------------

func (t *transaction) AddReadConflictRange(_ context.Context, begin, end []byte) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.reads = append(t.reads, keys.KeyRange{Begin: keys.Clone(begin), End: keys.Clone(end)})
	return nil
}

func (t *transaction) AddWriteConflictRange(_ context.Context, begin, end []byte) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.writes = append(t.writes, keys.KeyRange{Begin: keys.Clone(begin), End: keys.Clone(end)})
	return nil
}

// ConflictRanges returns the conflict ranges recorded so far. They are kept
// for inspection only; commits are never rejected.
func (t *transaction) ConflictRanges() (reads, writes []keys.KeyRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]keys.KeyRange(nil), t.reads...), append([]keys.KeyRange(nil), t.writes...)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func (t *transaction) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.close()
	if len(t.log) == 0 {
		Logger.Debugf("read-only transaction at version %d committed", t.readVersion)
		return nil
	}

	version := t.store.commit(t.log)
	Logger.Debugf("committed version %d: %d writes, %d read and %d write conflict ranges",
		version, len(t.log), len(t.reads), len(t.writes))
	return nil
}

func (t *transaction) Abort(_ context.Context) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	t.close()
	Logger.Debugf("transaction at version %d aborted, %d writes discarded", t.readVersion, len(t.log))
	return nil
}

// close must be called with mu held.
func (t *transaction) close() {
	t.closed = true
	t.store.open.Add(-1)
	_ = t.view.Close()
}
