package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/txcache/lib/db"
	"github.com/ValentinKolb/txcache/lib/db/engines/btree"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/lib/store/lstore"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/ValentinKolb/txcache/rpc/serializer"
	"github.com/ValentinKolb/txcache/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
)

var Logger = logger.GetLogger("rpc")

// Option configures an RPCServer
type Option func(*RPCServer)

// WithStore serves s instead of a new btree backed store
func WithStore(s lstore.LocalStore) Option {
	return func(r *RPCServer) { r.store = s }
}

// WithFs sets the filesystem holding the snapshot, the OS filesystem by default
func WithFs(fs afero.Fs) Option {
	return func(r *RPCServer) { r.fs = fs }
}

// RPCServer serves a local store over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	fs         afero.Fs
	store      lstore.LocalStore
	adapter    *StoreServerAdapter

	stopReaper chan struct{}
	stopOnce   sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	opts ...Option,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		fs:         afero.NewOsFs(),
		stopReaper: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		degree := config.BTreeDegree
		s.store = lstore.NewLocalStore(func() db.KVDB {
			return btree.NewBTreeDB(&btree.DBOptions{Degree: degree})
		})
	}
	s.adapter = NewStoreServerAdapter(s.store)

	return s
}

// Store returns the served store
func (s *RPCServer) Store() lstore.LocalStore {
	return s.store
}

// OpenTransactions returns the number of transactions open on the server
func (s *RPCServer) OpenTransactions() int {
	return s.adapter.Open()
}

// init loads the snapshot and registers the request handler
func (s *RPCServer) init() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	if s.config.Snapshot != "" {
		switch _, err := s.fs.Stat(s.config.Snapshot); {
		case err == nil:
			if err := s.store.Load(s.fs, s.config.Snapshot); err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			info, _ := s.store.GetDBInfo()
			Logger.Infof("loaded snapshot %s with %d keys", s.config.Snapshot, info.Keys)
		case errors.Is(err, os.ErrNotExist):
			Logger.Infof("snapshot %s does not exist yet, starting empty", s.config.Snapshot)
		default:
			return fmt.Errorf("failed to stat snapshot: %w", err)
		}
	}

	s.transport.RegisterHandler(s.handle)
	return nil
}

// handle decodes a request, lets the adapter handle it and encodes the response
func (s *RPCServer) handle(req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("failed to deserialize request: %s", err)))
	} else {
		metrics.GetOrCreateCounter(fmt.Sprintf(`txcache_rpc_requests_total{type=%q}`, msg.MsgType)).Inc()

		ctx, cancel := s.requestContext()
		resp = s.adapter.Handle(ctx, &msg)
		cancel()
	}

	if resp.Err != "" {
		metrics.GetOrCreateCounter(fmt.Sprintf(`txcache_rpc_errors_total{code=%q}`, resp.Code)).Inc()
	}

	data, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		data, _ = s.serializer.Serialize(*common.NewErrorResponse(
			fmt.Errorf("failed to serialize response: %s", err)))
	}
	return data
}

func (s *RPCServer) requestContext() (context.Context, context.CancelFunc) {
	if s.config.TimeoutSecond > 0 {
		return context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutSecond)*time.Second)
	}
	return context.WithCancel(context.Background())
}

// reapIdle aborts abandoned transactions until Shutdown is called
func (s *RPCServer) reapIdle(maxIdle time.Duration) {
	ticker := time.NewTicker(max(maxIdle/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopReaper:
			return
		case <-ticker.C:
			if n := s.adapter.AbortIdle(context.Background(), maxIdle); n > 0 {
				Logger.Infof("aborted %d idle transactions", n)
			}
		}
	}
}

// Serve starts the RPC server
// This function will also initialize the server and start the transport layer.
// It blocks until Shutdown is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	if s.config.TxIdleTimeoutSecond > 0 {
		go s.reapIdle(time.Duration(s.config.TxIdleTimeoutSecond) * time.Second)
	}

	return s.transport.Listen(s.config)
}

// Shutdown stops the transport, aborts the open transactions and writes the
// snapshot if one is configured
func (s *RPCServer) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopReaper) })

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop transport: %w", err)
	}

	if n := s.adapter.AbortAll(ctx); n > 0 {
		Logger.Infof("aborted %d open transactions", n)
	}

	if s.config.Snapshot != "" {
		if err := s.store.Save(s.fs, s.config.Snapshot); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		Logger.Infof("saved snapshot %s", s.config.Snapshot)
	}
	return nil
}
