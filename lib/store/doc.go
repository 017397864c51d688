// Package store provides the interface of a transactional, ordered key-value
// store together with unified error handling. It sits between the raw
// db.KVDB engines and the clients that use the store as the backend of a
// transaction cache.
//
// Key Components:
//
//   - IStore Interface: Opens transactions and reports database metadata.
//
//   - ITransaction Interface: A single transaction with point reads, key
//     selector resolution, paged range reads, buffered writes, conflict range
//     recording and Commit/Abort. Its method set matches the backend expected
//     by lib/txcache, so a transaction can be used as a cache backend directly.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Errors implement Is by code, so sentinel checks
//     like errors.Is(err, store.ErrTransactionClosed) also work for errors that
//     were sent over the network and rebuilt by the client.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances.
//
// Implementations:
//
//	- Local Store (lstore): An in-process implementation on top of a db.KVDB.
//	  Available in the "github.com/ValentinKolb/txcache/lib/store/lstore" package.
//
//	- Remote Store (rpc/client): Forwards every transaction operation to a
//	  server hosting a local store.
//	  Available in the "github.com/ValentinKolb/txcache/rpc/client" package.
package store
