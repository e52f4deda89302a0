// Package query defines the contract of a queryable document store, the
// "remote" backend behind the rdown driver.
//
// A table holds documents of the form {id, value}. The primary key field id is
// the only field that can be filtered on, which keeps every query a single
// range scan over one ordering dimension:
//
//	q := query.Table("users").
//		Filter(query.Field(query.PK).Gte([]byte("a"))).
//		Filter(query.Field(query.PK).Lt([]byte("m"))).
//		OrderBy(query.Desc).
//		Limit(10)
//
//	cursor, err := backend.Run(ctx, q)
//	...
//	for {
//		row, err := cursor.Next(ctx)
//		if errors.Is(err, query.ErrCursorExhausted) {
//			break
//		}
//		...
//	}
//
// Implementations:
//
//   - engines/sqlite: tables are SQL tables in a modernc.org/sqlite database file.
//   - engines/pebble: tables are key prefixes in a cockroachdb/pebble store.
//   - rpc/client: forwards every call to a kvdown server, which hosts one of the
//     engines above. Cursors stay open on the server until closed.
//
// Writes carry WriteOptions that are passed through untouched: Conflict decides
// between upsert and failing on an existing row, Durability decides whether the
// write is acknowledged after the in-memory commit or after it was persisted.
//
// Errors are reported with the sentinels in errors.go. They are mapped to an
// ErrCode so that errors.Is keeps working after a round trip through the RPC layer.
package query
