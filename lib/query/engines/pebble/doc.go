// Package pebble implements query.IBackend on top of cockroachdb/pebble.
//
// All tables share one pebble store. A table is a catalog entry plus a key
// prefix, see keys.go for the layout. Values are prefixed with a kind byte so
// that strings and binary values come back the way they were written.
//
// Queries are translated into iterator bounds (query.Query.KeyRange) and
// walked forwards or backwards. DurabilityHard commits with pebble.Sync,
// DurabilitySoft with pebble.NoSync.
package pebble
