// Package client implements the RPC client of the transaction server.
// It provides an implementation of the store.IStore interface whose
// transactions live on a remote server.
//
// The package focuses on:
//   - Transparent RPC access to server side transactions
//   - Integration with the transport and serialization layers
//   - Rebuilding store errors from their wire form so errors.Is keeps working
//
// Key Components:
//
//   - NewRemoteStore: Factory function that creates a client implementing the
//     store.IStore interface. Every transaction it opens is addressed by the id
//     the server returned for the Begin request.
//
// A remote transaction implements txcache.Backend, txcache.Committer and
// txcache.Aborter, so a cache can be placed in front of it:
//
//	config := common.ClientConfig{
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	  TimeoutSecond: 5,
//	}
//
//	remote, _ := client.NewRemoteStore(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer remote.Close()
//
//	backend, _ := remote.NewTransaction(ctx)
//	tx := txcache.NewTransaction(backend)
//	value, ok, _ := tx.Get(ctx, []byte("mykey"), false)
//	_ = tx.Set(ctx, []byte("mykey"), []byte("myvalue"))
//	_ = tx.Commit(ctx)
//
// Thread Safety:
//
//	The store and its transactions can be used concurrently from multiple
//	goroutines. A transport retries requests whose connection broke, a Commit
//	that was applied before the connection broke then fails with an unknown
//	transaction error.
package client
