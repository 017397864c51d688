package server

import (
	"context"
	"testing"

	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/ValentinKolb/txcache/rpc/serializer"
	"github.com/ValentinKolb/txcache/rpc/transport/unix"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(fs afero.Fs) *RPCServer {
	config := common.ServerConfig{
		Transport:     common.ServerTransportConfig{Endpoint: "unused.sock"},
		TimeoutSecond: 5,
		Snapshot:      "/data/store.snap",
	}
	return NewRPCServer(config, unix.NewUnixServerTransport(), serializer.NewBinarySerializer(), WithFs(fs))
}

// call runs one request through the serializer and the adapter
func call(t *testing.T, s *RPCServer, req *common.Message) *common.Message {
	ser := serializer.NewBinarySerializer()
	data, err := ser.Serialize(*req)
	require.NoError(t, err)

	var resp common.Message
	require.NoError(t, ser.Deserialize(s.handle(data), &resp))
	return &resp
}

func TestSnapshotOnShutdown(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))

	s := newTestServer(fs)
	require.NoError(t, s.init())

	id := call(t, s, common.NewBeginRequest()).TxID
	require.NoError(t, call(t, s, common.NewSetRequest(id, []byte("a"), []byte("1"))).AsError())
	require.NoError(t, call(t, s, common.NewTxRequest(common.MsgTTxCommit, id)).AsError())

	// left open, aborted on shutdown
	open := call(t, s, common.NewBeginRequest()).TxID
	require.NoError(t, call(t, s, common.NewSetRequest(open, []byte("b"), []byte("2"))).AsError())
	assert.Equal(t, 1, s.OpenTransactions())

	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.OpenTransactions())

	exists, err := afero.Exists(fs, "/data/store.snap")
	require.NoError(t, err)
	require.True(t, exists)

	restored := newTestServer(fs)
	require.NoError(t, restored.init())

	id = call(t, restored, common.NewBeginRequest()).TxID
	resp := call(t, restored, common.NewGetRequest(id, []byte("a")))
	require.NoError(t, resp.AsError())
	assert.True(t, resp.Ok)
	assert.Equal(t, []byte("1"), resp.Value)

	resp = call(t, restored, common.NewGetRequest(id, []byte("b")))
	require.NoError(t, resp.AsError())
	assert.False(t, resp.Ok)
}

func TestMissingSnapshot(t *testing.T) {
	s := newTestServer(afero.NewMemMapFs())
	require.NoError(t, s.init())

	info, err := s.Store().GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, 0, info.Keys)
}

func TestHandleInvalidRequest(t *testing.T) {
	s := newTestServer(afero.NewMemMapFs())

	var resp common.Message
	require.NoError(t, serializer.NewBinarySerializer().Deserialize(s.handle([]byte{1}), &resp))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Error(t, resp.AsError())
}
