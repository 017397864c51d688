// Package server implements the RPC server of the transaction server.
// It serves the transactions of one local store to remote clients.
//
// The package focuses on:
//   - Server-side RPC request handling for transaction operations
//   - Adapter pattern to decouple the store from the RPC mechanisms
//   - Keeping transactions open between requests and aborting abandoned ones
//   - Persisting the store to a snapshot on shutdown
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes one decoded request.
//
//   - NewStoreServerAdapter: Factory function creating an adapter that translates
//     RPC requests to store.ITransaction method calls. Transactions are kept by id
//     from the Begin request until Commit or Abort.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: common.ServerTransportConfig{
//	    Endpoint: "0.0.0.0:8080",
//	  },
//	  TimeoutSecond:       5,
//	  TxIdleTimeoutSecond: 60,
//	  Snapshot:            "/var/lib/txcache/store.snap",
//	  LogLevel:            "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Every request increments txcache_rpc_requests_total and every failed one
// txcache_rpc_errors_total. The counters are exported by the http transport
// on /metrics.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections.
//	Requests of one transaction are serialized by the store transaction.
//	Serve should be called only once.
package server
