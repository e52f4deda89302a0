// Package maple implements db.KVDB, the backing store of the local driver.
//
// Key Components:
//
//   - Values: a concurrent xsync map from key to value. Reads (GetItem) are lock free.
//
//   - Positional index: a slice of all keys plus a map from key to its slot.
//     New keys are appended, removed keys are replaced by the last key (swap
//     remove), so every write is O(1) and Key(i) is a slice lookup. The order of
//     the index carries no meaning.
//
//   - Persistence: the whole database is written with Save in a small binary
//     format and restored with Load. When opened with a path, the file is
//     loaded on startup and rewritten on Flush and Close. Flush writes to a
//     temporary file next to the target and renames it over the target, so a
//     crash leaves either the old or the new state on disk.
//
// File format (little endian):
//
//	magic   "MAPLEDB\x00"
//	version uint8
//	count   uint64
//	count x { keyLen uint32, key, valueLen uint32, value }
//
// Thread Safety:
//
// All methods are safe for concurrent use except Load, which must not race
// with other calls.
package maple
