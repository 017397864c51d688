// Package http implements an HTTP-based transport layer for RPC communication.
// It provides concrete implementations of the transport interfaces defined in
// the parent package, enabling communication between clients and servers over HTTP.
//
// The package focuses on:
//   - Client-side HTTP transport for sending RPC requests to servers
//   - Server-side HTTP transport built on a chi router
//   - Round-robin load balancing across multiple server endpoints
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport interface, posting
//     every request to the /rpc route of the next endpoint and retrying with
//     backoff.
//
//   - httpServerTransport: Implements IRPCServerTransport interface. Its Router
//     serves POST /rpc, GET /health and GET /metrics, the latter in the
//     Prometheus text format.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
package http
