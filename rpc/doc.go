// Package rpc makes a query.IBackend available over the network. A server
// hosts one backend per shard, clients use them through the same interface,
// which lets the remote driver (lib/down/rdown) run against a server.
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
//   - client: query.IBackend implementation forwarding to a server shard.
//
//   - server: RPC server hosting sqlite or pebble backends, including the
//     cursor registry and request metrics.
package rpc
