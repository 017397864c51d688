package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// openTx is a transaction held by the server between requests
type openTx struct {
	tx       store.ITransaction
	lastUsed atomic.Int64 // unix nanos of the last request
}

func (o *openTx) touch() {
	o.lastUsed.Store(time.Now().UnixNano())
}

// StoreServerAdapter serves the transaction protocol for one store. Clients
// address transactions by the id returned from the Begin request.
type StoreServerAdapter struct {
	store  store.IStore
	txs    *xsync.MapOf[uint64, *openTx]
	nextID atomic.Uint64
}

// NewStoreServerAdapter creates an adapter that opens its transactions on s
func NewStoreServerAdapter(s store.IStore) *StoreServerAdapter {
	return &StoreServerAdapter{
		store: s,
		txs:   xsync.NewMapOf[uint64, *openTx](),
	}
}

// Open returns the number of transactions held by the adapter
func (a *StoreServerAdapter) Open() int {
	return a.txs.Size()
}

func (a *StoreServerAdapter) Handle(ctx context.Context, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTTxBegin:
		tx, err := a.store.NewTransaction(ctx)
		if err != nil {
			return common.NewBeginResponse(0, err)
		}
		o := &openTx{tx: tx}
		o.touch()
		id := a.nextID.Add(1)
		a.txs.Store(id, o)
		return common.NewBeginResponse(id, nil)

	case common.MsgTInfo:
		info, err := a.store.GetDBInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)

	case common.MsgTTxCommit, common.MsgTTxAbort:
		// the transaction is closed either way, forget it first
		o, ok := a.txs.LoadAndDelete(req.TxID)
		if !ok {
			return common.NewResponse(req.MsgType, store.ErrUnknownTransaction)
		}
		if req.MsgType == common.MsgTTxCommit {
			return common.NewResponse(req.MsgType, o.tx.Commit(ctx))
		}
		return common.NewResponse(req.MsgType, o.tx.Abort(ctx))
	}

	o, ok := a.txs.Load(req.TxID)
	if !ok {
		return common.NewResponse(req.MsgType, store.ErrUnknownTransaction)
	}
	o.touch()
	tx := o.tx

	switch req.MsgType {
	case common.MsgTTxGet:
		value, exists, err := tx.Get(ctx, req.Key)
		return common.NewGetResponse(value, exists, err)
	case common.MsgTTxGetKey:
		key, err := tx.GetKey(ctx, req.BeginSelector())
		return common.NewGetKeyResponse(key, err)
	case common.MsgTTxGetRange:
		result, err := tx.GetRange(ctx, req.BeginSelector(), req.EndSelector(), req.RangeOptions())
		return common.NewGetRangeResponse(result, err)
	case common.MsgTTxSet:
		return common.NewResponse(req.MsgType, tx.Set(ctx, req.Key, req.Value))
	case common.MsgTTxClear:
		return common.NewResponse(req.MsgType, tx.Clear(ctx, req.Key))
	case common.MsgTTxClearRange:
		return common.NewResponse(req.MsgType, tx.ClearRange(ctx, req.Key, req.End))
	case common.MsgTTxAddReadConflict:
		return common.NewResponse(req.MsgType, tx.AddReadConflictRange(ctx, req.Key, req.End))
	case common.MsgTTxAddWriteConflict:
		return common.NewResponse(req.MsgType, tx.AddWriteConflictRange(ctx, req.Key, req.End))
	default:
		return common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("unsupported message type: %s", req.MsgType)))
	}
}

// AbortIdle aborts the transactions that received no request for longer than
// maxIdle and returns how many were aborted
func (a *StoreServerAdapter) AbortIdle(ctx context.Context, maxIdle time.Duration) int {
	deadline := time.Now().Add(-maxIdle).UnixNano()
	aborted := 0

	a.txs.Range(func(id uint64, o *openTx) bool {
		if o.lastUsed.Load() >= deadline {
			return true
		}
		// a concurrent commit or abort may have taken it already
		if _, ok := a.txs.LoadAndDelete(id); !ok {
			return true
		}
		if err := o.tx.Abort(ctx); err != nil {
			Logger.Warningf("failed to abort idle transaction %d: %v", id, err)
		}
		aborted++
		return true
	})

	return aborted
}

// AbortAll aborts every open transaction, used on shutdown
func (a *StoreServerAdapter) AbortAll(ctx context.Context) int {
	return a.AbortIdle(ctx, -time.Hour)
}
