package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

type DatabaseInfo struct {
	Path      string         `json:"path"`
	Length    int            `json:"length"`
	SizeBytes int            `json:"size_bytes"`
	DbType    Implementation `json:"db_type"`
	Metadata  interface{}    `json:"metadata"`
}

// DBFactory opens the store persisted at path. An empty path opens a volatile
// store that is never written to disk.
type DBFactory func(path string) (KVDB, error)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB is a flat, unordered string key-value store with positional key access,
// in the style of a browser's localStorage. Keys and values are strings; binary
// data is stored byte for byte inside the string.
//
// The positions used by Key are only stable until the next write. Callers that
// need a consistent view snapshot all keys first (Length + Key) and sort them.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Positional Access
	// --------------------------------------------------------------------------

	// Length returns the number of stored keys.
	Length() (n int)

	// Key returns the key at position i (0 <= i < Length()).
	// The boolean return value is false if i is out of range.
	Key(i int) (key string, ok bool)

	// --------------------------------------------------------------------------
	// Item Operations
	// --------------------------------------------------------------------------

	// GetItem returns the value stored for key.
	// The boolean return value indicates whether the key was found.
	GetItem(key string) (value string, loaded bool)

	// SetItem inserts or overwrites the value for key.
	SetItem(key, value string)

	// RemoveItem deletes key and reports whether it was present.
	RemoveItem(key string) (removed bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save writes the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// Flush persists the database to its path (no-op for volatile stores).
	Flush() (err error)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close flushes and closes the database. Closing twice is a no-op.
	Close() (err error)
}
