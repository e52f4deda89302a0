// Package base implements the framed request/response transport shared by the
// tcp and unix transports. The network specific parts (dialing, listening,
// socket options) are supplied by an IClientConnector or IServerConnector.
//
// Frames:
//
//	Every request and response is one frame: a 20 byte header (shard id uint64,
//	request id uint64, payload length uint32, big endian) followed by the
//	serialized message. Header and payload are written with one net.Buffers
//	write. Payloads above MaxFrameSize are refused on both sides, a reader
//	that sees a larger length drops the connection.
//
// Client:
//
//	The client opens ConnectionsPerEndpoint connections to each endpoint and
//	picks one round-robin per request. Responses are matched to waiting
//	requests by request id, so many requests can be in flight on a connection.
//	A request is tried up to RetryCount times with exponential backoff and
//	jitter. Send returns early when its context is done.
//
// Server:
//
//	Each accepted connection gets a reader goroutine. Requests are handled by at
//	most WorkersPerConn goroutines per connection, responses may be written out
//	of order. Read buffers come from a sync.Pool. Close stops the listener and
//	closes all open connections.
package base
