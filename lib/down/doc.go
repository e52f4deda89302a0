// Package down defines the contract of an ordered key-value store driver and
// the pieces shared by its implementations.
//
// Implementations:
//
//   - ldown: a local driver over a db.KVDB (an unordered localStorage-like
//     store). Ranges are resolved by index arithmetic over a sorted snapshot of
//     all keys.
//   - rdown: a remote driver over a query.IBackend (a queryable document store).
//     Ranges are translated into filter, order and limit clauses of a query and
//     streamed from a cursor.
//
// Both drivers must yield the same records in the same order for the same
// IteratorOptions. The shared building blocks make sure they do:
//
//   - Bounds folds the six bound fields (start, end, gt, gte, lt, lte) into
//     primary key predicates, mirroring the operators in reverse mode.
//   - Resolve applies those predicates to a sorted key array and returns the
//     closed interval [Low, High] of matching positions.
//   - Decode, Bytes, Normalize and NormalizeRaw convert between the text and
//     binary representation of values and collapse empty values.
//   - NormalizeError maps every backend failure to an *Error with a RetCode.
//
// Differences between the drivers:
//
//   - Batch: ldown applies ops one at a time and stops at the first failure,
//     rdown validates the whole batch and sends it as one request.
//   - Isolation: ldown iterators work on a snapshot of the keys taken at
//     construction (values are read live), rdown iterators see whatever the
//     backend cursor sees.
package down
