// Package sqlite implements query.IBackend on top of modernc.org/sqlite.
//
// Every table is an SQL table with the schema (id BLOB PRIMARY KEY, value).
// The value column has no declared type, so strings and binary values keep the
// representation they were written with. Keys are compared as blobs (memcmp),
// which gives the same order as bytes.Compare.
//
// The database runs in WAL mode so that open cursors do not block writers.
// Write durability maps to PRAGMA synchronous: DurabilityHard uses FULL,
// DurabilitySoft uses OFF.
package sqlite
