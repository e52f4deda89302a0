// Package db defines the backing store of the local (array) driver: a flat,
// unordered string key-value store with positional key access.
//
// The interface mirrors the storage API of a browser:
//
//	n := store.Length()
//	key, _ := store.Key(i)
//	value, ok := store.GetItem(key)
//	store.SetItem(key, value)
//	store.RemoveItem(key)
//
// Stores do not keep their keys in any particular order. The ldown driver
// (github.com/ValentinKolb/kvdown/lib/down/ldown) takes a snapshot of all keys
// and sorts it before resolving a range, so implementations are free to use
// whatever layout is fastest for point operations.
//
// Persistence:
//   - Save and Load stream the whole database in an implementation specific format.
//   - Flush writes the database to the path it was opened with. Implementations
//     must replace the file atomically, a crash during Flush leaves the previous
//     state on disk.
//   - A DBFactory opens the store for a path, loading the file if it exists.
//
// Related Packages:
//
// The engines/maple package provides the default implementation on top of a
// concurrent xsync map plus a positional key index.
//
// The testing package provides RunKVDBTests, a conformance suite every
// implementation is expected to pass, and RunKVDBBenchmarks.
package db
