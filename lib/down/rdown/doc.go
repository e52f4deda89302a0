// Package rdown implements down.IDown on top of a query.IBackend, a document
// store that can filter, order and limit rows by their primary key.
//
// Every driver owns one table of the backend. The table name is derived from
// the location passed to New (runs of non-word characters become "_"), so
// "data/my-db" is stored in the table "data_my_db".
//
// Ranges are never resolved locally. NewIterator translates the bound fields
// of down.IteratorOptions into predicates (down.Bounds), adds the order and
// the limit and runs the resulting query:
//
//	q := query.Table("data_my_db").
//		Filter(query.Field(query.PK).Gt([]byte("batch3"))).
//		OrderBy(query.Asc).
//		Limit(10)
//
// The iterator then pulls one row per Next from the returned cursor. A
// drained cursor ends the iteration without an error. Canceling the context
// passed to Next closes the cursor.
//
// Writes use conflict mode "update" and map WriteOptions.Sync to hard
// durability. Batches are validated as a whole before the first op is sent and
// are then applied with a single Apply request.
package rdown
