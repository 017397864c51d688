package lstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/db/engines/btree"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newStore() LocalStore {
	return NewLocalStore(func() db.KVDB { return btree.NewBTreeDB(nil) })
}

// seed commits the given pairs in one transaction.
func seed(t *testing.T, s store.IStore, pairs ...string) {
	ctx := context.Background()
	tx, err := s.NewTransaction(ctx)
	require.NoError(t, err)
	for i := 0; i+1 < len(pairs); i += 2 {
		require.NoError(t, tx.Set(ctx, []byte(pairs[i]), []byte(pairs[i+1])))
	}
	require.NoError(t, tx.Commit(ctx))
}

func kvKeys(kvs []keys.KeyValue) []string {
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, string(kv.Key))
	}
	return out
}

// TestGetKey checks selector resolution over the keys a, c and e.
func TestGetKey(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	seed(t, s, "a", "1", "c", "2", "e", "3")

	tx, err := s.NewTransaction(ctx)
	require.NoError(t, err)

	cases := []struct {
		sel  keys.KeySelector
		want string
	}{
		{keys.FirstGreaterOrEqual([]byte("a")), "a"},
		{keys.FirstGreaterOrEqual([]byte("b")), "c"},
		{keys.FirstGreaterThan([]byte("c")), "e"},
		{keys.FirstGreaterThan([]byte("e")), "\xff"},
		{keys.FirstGreaterOrEqual([]byte("a")).Add(2), "e"},
		{keys.FirstGreaterOrEqual([]byte("a")).Add(5), "\xff"},
		{keys.LastLessOrEqual([]byte("c")), "c"},
		{keys.LastLessThan([]byte("c")), "a"},
		{keys.LastLessOrEqual([]byte("d")), "c"},
		{keys.LastLessThan([]byte("a")), ""},
		{keys.LastLessOrEqual([]byte("z")).Add(-2), "a"},
		{keys.LastLessOrEqual([]byte("\xff")), "e"},
	}

	for _, tc := range cases {
		t.Run(tc.sel.String(), func(t *testing.T) {
			key, err := tx.GetKey(ctx, tc.sel)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(key))
		})
	}

	_, err = tx.GetKey(ctx, keys.FirstGreaterOrEqual([]byte("\xff\x01")))
	require.ErrorIs(t, err, store.ErrIllegalKey)
}

func TestGetRange(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for i := 0; i < 10; i++ {
		seed(t, s, fmt.Sprintf("k%d", i), fmt.Sprint(i))
	}

	tx, err := s.NewTransaction(ctx)
	require.NoError(t, err)

	begin, end := keys.FirstGreaterOrEqual([]byte("k2")), keys.FirstGreaterThan([]byte("k6"))

	result, err := tx.GetRange(ctx, begin, end, keys.RangeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"k2", "k3", "k4", "k5", "k6"}, kvKeys(result.KVs))
	require.False(t, result.More)

	result, err = tx.GetRange(ctx, begin, end, keys.RangeOptions{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"k2", "k3"}, kvKeys(result.KVs))
	require.True(t, result.More)

	result, err = tx.GetRange(ctx, begin, end, keys.RangeOptions{Limit: 5, Reverse: true})
	require.NoError(t, err)
	require.Equal(t, []string{"k6", "k5", "k4", "k3", "k2"}, kvKeys(result.KVs))
	require.False(t, result.More)
	require.Equal(t, []byte("6"), result.KVs[0].Value)

	// selectors that resolve in the wrong order give an empty result
	result, err = tx.GetRange(ctx, end, begin, keys.RangeOptions{})
	require.NoError(t, err)
	require.Empty(t, result.KVs)
}

// TestIsolation checks read-your-writes inside a transaction and that other
// transactions only see committed writes of versions before they started.
func TestIsolation(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	seed(t, s, "a", "1", "b", "2")

	writer, err := s.NewTransaction(ctx)
	require.NoError(t, err)
	before, err := s.NewTransaction(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, []byte("c"), []byte("3")))
	require.NoError(t, writer.ClearRange(ctx, []byte("a"), []byte("b\x00")))

	value, ok, err := writer.Get(ctx, []byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("3"), value)

	key, err := writer.GetKey(ctx, keys.FirstGreaterOrEqual([]byte{}))
	require.NoError(t, err)
	require.Equal(t, []byte("c"), key)

	_, ok, err = before.Get(ctx, []byte("c"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, writer.Commit(ctx))

	// still reading the old version
	_, ok, err = before.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	after, err := s.NewTransaction(ctx)
	require.NoError(t, err)
	result, err := after.GetRange(ctx, keys.FirstGreaterOrEqual([]byte{}), keys.FirstGreaterOrEqual(keys.KeyspaceEnd), keys.RangeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, kvKeys(result.KVs))
}

func TestIllegalKeys(t *testing.T) {
	ctx := context.Background()
	tx, err := newStore().NewTransaction(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, tx.Set(ctx, []byte("\xff"), nil), store.ErrIllegalKey)
	require.ErrorIs(t, tx.Set(ctx, []byte("\xff/system"), nil), store.ErrIllegalKey)
	require.ErrorIs(t, tx.Clear(ctx, []byte("\xff")), store.ErrIllegalKey)
	require.ErrorIs(t, tx.ClearRange(ctx, []byte("a"), []byte("\xff\x00")), store.ErrIllegalKey)

	// clearing up to the keyspace end is fine
	require.NoError(t, tx.ClearRange(ctx, []byte{}, keys.KeyspaceEnd))
	require.NoError(t, tx.ClearRange(ctx, []byte("b"), []byte("a")))
}

func TestClosedTransaction(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	tx, err := s.NewTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddReadConflictRange(ctx, []byte("a"), []byte("b")))
	require.NoError(t, tx.AddWriteConflictRange(ctx, []byte("c"), []byte("d")))

	reads, writes := tx.(*transaction).ConflictRanges()
	require.Equal(t, []keys.KeyRange{{Begin: []byte("a"), End: []byte("b")}}, reads)
	require.Equal(t, []keys.KeyRange{{Begin: []byte("c"), End: []byte("d")}}, writes)

	require.NoError(t, tx.Abort(ctx))

	_, _, err = tx.Get(ctx, []byte("a"))
	require.ErrorIs(t, err, store.ErrTransactionClosed)
	require.ErrorIs(t, tx.Set(ctx, []byte("a"), nil), store.ErrTransactionClosed)
	require.ErrorIs(t, tx.Commit(ctx), store.ErrTransactionClosed)

	var storeErr *store.Error
	require.ErrorAs(t, tx.Abort(ctx), &storeErr)
	require.Equal(t, store.RetCTransactionClosed, storeErr.Code)
}

func TestConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tx, err := s.NewTransaction(ctx)
				require.NoError(t, err)
				require.NoError(t, tx.Set(ctx, []byte(fmt.Sprintf("w%d/%03d", w, i)), nil))
				require.NoError(t, tx.Commit(ctx))
			}
		}(w)
	}
	wg.Wait()

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	require.Equal(t, 400, info.Keys)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := newStore()
	seed(t, s, "a", "1", "b", "2")
	seed(t, s, "c", "3")

	require.NoError(t, s.Save(fs, "/data/snapshot"))
	exists, err := afero.Exists(fs, "/data/snapshot.tmp")
	require.NoError(t, err)
	require.False(t, exists)

	restored := newStore()
	require.NoError(t, restored.Load(fs, "/data/snapshot"))

	tx, err := restored.NewTransaction(ctx)
	require.NoError(t, err)
	result, err := tx.GetRange(ctx, keys.FirstGreaterOrEqual([]byte{}), keys.FirstGreaterOrEqual(keys.KeyspaceEnd), keys.RangeOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, kvKeys(result.KVs))

	// new commits continue after the restored version
	require.NoError(t, tx.Set(ctx, []byte("d"), nil))
	require.NoError(t, tx.Commit(ctx))
	info, err := restored.GetDBInfo()
	require.NoError(t, err)
	require.EqualValues(t, 3, info.Metadata.(*Metadata).CommittedVersion)
	require.Zero(t, info.Metadata.(*Metadata).OpenTransactions)

	require.Error(t, restored.Load(fs, "/data/missing"))
}
