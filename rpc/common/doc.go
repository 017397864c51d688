// Package common provides core data structures and utilities shared across
// the RPC packages. It defines the message protocol, the configuration
// structures and the logging setup.
//
// The package focuses on:
//   - Message protocol definition for transaction requests and responses
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Key selectors are
//     flattened into key, inclusive flag and offset fields. Errors travel as a
//     store return code plus message and are rebuilt with AsError.
//
//   - MessageType: Enumeration of all supported operations, one per method of
//     store.ITransaction plus Begin and Info.
//
//   - ServerConfig: Configuration of the server, covering the transport, the
//     timeouts, the storage engine and the snapshot file.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - InitLoggers: Installs the logger factory and sets the level of every
//     package logger.
package common
