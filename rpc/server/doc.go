// Package server implements the RPC server of the remote query store. Each
// shard of a server is backed by its own query.IBackend (sqlite or pebble)
// stored below the data directory.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a query.IBackend.
//
//   - NewQueryServerAdapter: Factory function creating the adapter that translates
//     RPC requests to query.IBackend calls. Cursors opened by Run requests stay
//     on the server and are addressed by id in CursorNext and CursorClose requests.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeSQLite},
//	    {ShardID: 200, Type: common.ShardTypePebble},
//	  },
//	  DataDir: "./data",
//	  Endpoint: "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  CursorIdleSecond: 60,
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Cursors:
//
//	A cursor is released when it is drained, when its Next fails, when the
//	client closes it, or when it was not used for CursorIdleSecond. Requests
//	for a released cursor fail with "cursor not found".
//
// Metrics:
//
//	Requests, failed requests and request durations are recorded per message
//	type with VictoriaMetrics counters and histograms. The http transport
//	serves them at GET /metrics.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	Across multiple connections. Calls on one cursor are serialized.
//	The Serve method should be called only once.
package server
