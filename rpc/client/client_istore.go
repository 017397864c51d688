package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/ValentinKolb/txcache/rpc/serializer"
	"github.com/ValentinKolb/txcache/rpc/transport"
)

// NewRemoteStore creates a store whose transactions live on a server
// The function takes a config, a transport and a serializer as parameters
// and connects the transport
func NewRemoteStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RemoteStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RemoteStore{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RemoteStore implements store.IStore over RPC
type RemoteStore struct {
	rpcClientAdapter
}

// Close closes the transport. Open transactions are aborted by the server
// once they are idle for too long.
func (s *RemoteStore) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (s *RemoteStore) NewTransaction(ctx context.Context) (store.ITransaction, error) {
	resp, err := s.invoke(ctx, common.NewBeginRequest())
	if err != nil {
		return nil, err
	}
	Logger.Debugf("opened remote transaction %d", resp.TxID)
	return &remoteTransaction{rpcClientAdapter: s.rpcClientAdapter, id: resp.TxID}, nil
}

func (s *RemoteStore) GetDBInfo() (info db.DatabaseInfo, err error) {
	resp, err := s.invoke(context.Background(), common.NewInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("decode database info: %w", err)
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// remoteTransaction forwards every call to the server transaction id
type remoteTransaction struct {
	rpcClientAdapter
	id uint64
}

func (t *remoteTransaction) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := t.invoke(ctx, common.NewGetRequest(t.id, key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (t *remoteTransaction) GetKey(ctx context.Context, sel keys.KeySelector) ([]byte, error) {
	resp, err := t.invoke(ctx, common.NewGetKeyRequest(t.id, sel))
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return []byte{}, nil
	}
	return resp.Value, nil
}

func (t *remoteTransaction) GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error) {
	resp, err := t.invoke(ctx, common.NewGetRangeRequest(t.id, begin, end, opts))
	if err != nil {
		return keys.RangeResult{}, err
	}
	return keys.RangeResult{KVs: resp.Pairs, More: resp.Ok}, nil
}

func (t *remoteTransaction) Set(ctx context.Context, key, value []byte) error {
	_, err := t.invoke(ctx, common.NewSetRequest(t.id, key, value))
	return err
}

func (t *remoteTransaction) Clear(ctx context.Context, key []byte) error {
	_, err := t.invoke(ctx, common.NewClearRequest(t.id, key))
	return err
}

func (t *remoteTransaction) ClearRange(ctx context.Context, begin, end []byte) error {
	_, err := t.invoke(ctx, common.NewRangeRequest(common.MsgTTxClearRange, t.id, begin, end))
	return err
}

func (t *remoteTransaction) AddReadConflictRange(ctx context.Context, begin, end []byte) error {
	_, err := t.invoke(ctx, common.NewRangeRequest(common.MsgTTxAddReadConflict, t.id, begin, end))
	return err
}

func (t *remoteTransaction) AddWriteConflictRange(ctx context.Context, begin, end []byte) error {
	_, err := t.invoke(ctx, common.NewRangeRequest(common.MsgTTxAddWriteConflict, t.id, begin, end))
	return err
}

func (t *remoteTransaction) Commit(ctx context.Context) error {
	_, err := t.invoke(ctx, common.NewTxRequest(common.MsgTTxCommit, t.id))
	return err
}

func (t *remoteTransaction) Abort(ctx context.Context) error {
	_, err := t.invoke(ctx, common.NewTxRequest(common.MsgTTxAbort, t.id))
	return err
}
