// Package common provides the data structures shared by the RPC client,
// server, serializers and transports of the remote query store.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. A single struct
//     carries every request and response; which fields are set depends on the
//     MessageType. Factory functions build requests from query.Query,
//     query.Row and query.WriteOp values, accessors turn responses back into
//     them. Errors cross the wire as a query.ErrCode plus message so that the
//     sentinel errors of the query package survive the round trip.
//
//   - MessageType: Enumeration of all operations of query.IBackend and
//     query.ICursor plus the generic success and error messages.
//
//   - ServerConfig: Shards (id and engine), data directory, endpoint,
//     request timeout and cursor idle timeout of a server.
//
//   - ClientConfig: Endpoints, timeout and retry behaviour of a client.
//
//   - Logger: A dragonboat logger.Factory writing through zerolog, installed
//     by InitLoggers.
package common
