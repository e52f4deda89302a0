// Package cmd implements the command-line interface of kvdown. It provides a
// hierarchical command structure for running the server and for working with
// a store as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for store operations (put, get, del, batch, iter, size, destroy, perf)
//     against a local store file or a table on a kvdown server
//   - serve: Commands for starting and configuring the kvdown server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable KVDOWN_<FLAG> (dashes
// replaced by underscores), .env and .env.local files are loaded on start.
//
// See kvdown -help for a list of all commands.
package cmd
