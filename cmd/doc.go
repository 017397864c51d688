// Package cmd implements the command-line interface of txcache. It provides a
// hierarchical command structure for running the server and for running
// cached transactions against it.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the txcache server
//   - txn: One-shot cached transactions (get, getkey, range, set, clear,
//     clearrange) and the perf benchmark
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See txcache -help for a list of all commands.
package cmd
