package server

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/db/engines/btree"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/lib/store/lstore"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter() *StoreServerAdapter {
	return NewStoreServerAdapter(lstore.NewLocalStore(func() db.KVDB { return btree.NewBTreeDB(nil) }))
}

// begin opens a transaction and returns its id
func begin(t *testing.T, a *StoreServerAdapter) uint64 {
	resp := a.Handle(context.Background(), common.NewBeginRequest())
	require.NoError(t, resp.AsError())
	require.NotZero(t, resp.TxID)
	return resp.TxID
}

func TestAdapterCommit(t *testing.T) {
	ctx := context.Background()
	a := newAdapter()

	id := begin(t, a)
	resp := a.Handle(ctx, common.NewSetRequest(id, []byte("a"), []byte("1")))
	require.NoError(t, resp.AsError())
	assert.Equal(t, common.MsgTTxSet, resp.MsgType)

	// reads see the own writes
	resp = a.Handle(ctx, common.NewGetRequest(id, []byte("a")))
	require.NoError(t, resp.AsError())
	assert.True(t, resp.Ok)
	assert.Equal(t, []byte("1"), resp.Value)

	resp = a.Handle(ctx, common.NewTxRequest(common.MsgTTxCommit, id))
	require.NoError(t, resp.AsError())
	assert.Equal(t, 0, a.Open())

	// the committed value is visible to a new transaction
	other := begin(t, a)
	resp = a.Handle(ctx, common.NewGetRangeRequest(other, keys.FirstGreaterOrEqual([]byte{}),
		keys.FirstGreaterOrEqual(keys.KeyspaceEnd), keys.RangeOptions{}))
	require.NoError(t, resp.AsError())
	assert.Equal(t, []keys.KeyValue{{Key: []byte("a"), Value: []byte("1")}}, resp.Pairs)
	assert.False(t, resp.Ok)

	resp = a.Handle(ctx, common.NewGetKeyRequest(other, keys.FirstGreaterThan([]byte("a"))))
	require.NoError(t, resp.AsError())
	assert.Equal(t, keys.KeyspaceEnd, resp.Value)
}

func TestAdapterAbort(t *testing.T) {
	ctx := context.Background()
	a := newAdapter()

	id := begin(t, a)
	require.NoError(t, a.Handle(ctx, common.NewSetRequest(id, []byte("a"), []byte("1"))).AsError())
	require.NoError(t, a.Handle(ctx, common.NewTxRequest(common.MsgTTxAbort, id)).AsError())

	other := begin(t, a)
	resp := a.Handle(ctx, common.NewGetRequest(other, []byte("a")))
	require.NoError(t, resp.AsError())
	assert.False(t, resp.Ok)
}

func TestAdapterUnknownTransaction(t *testing.T) {
	ctx := context.Background()
	a := newAdapter()

	resp := a.Handle(ctx, common.NewGetRequest(99, []byte("a")))
	assert.ErrorIs(t, resp.AsError(), store.ErrUnknownTransaction)

	// a transaction is gone after commit
	id := begin(t, a)
	require.NoError(t, a.Handle(ctx, common.NewTxRequest(common.MsgTTxCommit, id)).AsError())
	resp = a.Handle(ctx, common.NewTxRequest(common.MsgTTxCommit, id))
	assert.ErrorIs(t, resp.AsError(), store.ErrUnknownTransaction)
}

func TestAdapterStoreErrors(t *testing.T) {
	ctx := context.Background()
	a := newAdapter()
	id := begin(t, a)

	resp := a.Handle(ctx, common.NewSetRequest(id, []byte("\xff\x01"), []byte("x")))
	assert.ErrorIs(t, resp.AsError(), store.ErrIllegalKey)

	resp = a.Handle(ctx, &common.Message{MsgType: common.MsgTSuccess, TxID: id})
	err := resp.AsError()
	require.Error(t, err)
	assert.ErrorIs(t, err, store.NewError(store.RetCInvalidOperation, ""))
}

func TestAdapterInfo(t *testing.T) {
	a := newAdapter()

	resp := a.Handle(context.Background(), common.NewInfoRequest())
	require.NoError(t, resp.AsError())
	assert.Contains(t, string(resp.Meta), `"keys":0`)
}

func TestAdapterAbortIdle(t *testing.T) {
	ctx := context.Background()
	a := newAdapter()

	stale := begin(t, a)
	time.Sleep(20 * time.Millisecond)
	fresh := begin(t, a)

	assert.Equal(t, 1, a.AbortIdle(ctx, 10*time.Millisecond))
	assert.Equal(t, 1, a.Open())

	resp := a.Handle(ctx, common.NewGetRequest(stale, []byte("a")))
	assert.ErrorIs(t, resp.AsError(), store.ErrUnknownTransaction)
	resp = a.Handle(ctx, common.NewGetRequest(fresh, []byte("a")))
	assert.NoError(t, resp.AsError())

	assert.Equal(t, 1, a.AbortAll(ctx))
	assert.Equal(t, 0, a.Open())
}
