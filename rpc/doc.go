// Package rpc provides the remote procedure call layer of the transaction
// server. It lets a client drive transactions that live on a server process,
// so a transaction cache can run in front of a store on another machine.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The remote store, whose transactions implement the store and
//     cache backend interfaces.
//
//   - server: The RPC server and the adapter that keeps server side
//     transactions open between requests.
package rpc
