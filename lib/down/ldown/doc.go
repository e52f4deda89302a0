// Package ldown implements down.IDown on top of a db.KVDB, a flat and
// unordered string store (see lib/db/engines/maple).
//
// Point operations map directly to the store: Get to GetItem, Put to SetItem,
// Delete to RemoveItem. Values are kept as text, binary values byte for byte.
//
// Iterators take a snapshot of all keys (Length + Key) when they are created,
// sort it and resolve the requested range to an interval of positions with
// down.Resolve. Next then steps an integer cursor across that interval in the
// requested direction. Values are read from the live store, so a key removed
// after the snapshot is skipped and a key added after it is not seen.
//
// Batches are not atomic: ops are applied one by one and a failing op stops
// the batch, leaving earlier ops applied. WriteOptions.Sync flushes the store
// to disk after the write.
package ldown
