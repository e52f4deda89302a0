// Package client implements the RPC client of the remote query store. It
// provides an implementation of query.IBackend that forwards every call to a
// server shard via the configured transport and serializer.
//
// Key Components:
//
//   - NewRPCBackend: Factory function that creates a client implementing the
//     query.IBackend interface. Errors raised on the server keep their query
//     sentinel (ErrNotFound, ErrTableExists, ...) so errors.Is works on them.
//
//   - rpcCursor: The query.ICursor returned by Run. Rows stay on the server and
//     are fetched one request per Next. Close releases the server cursor.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	// Create the backend for shard 100
//	backend, _ := client.NewRPCBackend(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//
//	// Use it directly or through the remote driver
//	db := rdown.New("my-db", backend)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient due to
//     reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The backend is thread-safe and can be used concurrently from multiple
//	goroutines. Calls on one cursor are serialized.
package client
