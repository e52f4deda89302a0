package query

import "context"

// --------------------------------------------------------------------------
// Write Options
// --------------------------------------------------------------------------

// Conflict selects what an insert does when a row with the same primary key exists.
type Conflict uint8

const (
	ConflictUpdate  Conflict = iota // Overwrite the value of the existing row
	ConflictReplace                 // Replace the existing row entirely
	ConflictError                   // Fail the write with ErrConflict
)

// Durability selects when a write is acknowledged.
type Durability uint8

const (
	DurabilitySoft Durability = iota // Acknowledged after the in-memory commit
	DurabilityHard                   // Acknowledged only after the write is persisted
)

// WriteOptions are passed through to the backend on every write.
type WriteOptions struct {
	Conflict   Conflict
	Durability Durability
}

// OpenOptions control how OpenTable treats missing or existing tables.
type OpenOptions struct {
	CreateIfMissing bool
	ErrorIfExists   bool
}

// --------------------------------------------------------------------------
// Rows and Write Operations
// --------------------------------------------------------------------------

// Row is a single document of a table. Key holds the primary key (PK), Value
// keeps the representation it was stored with (string or []byte, nil if unset).
type Row struct {
	Key   []byte
	Value any
}

// WriteOpType is the type of a single operation inside Apply.
type WriteOpType uint8

const (
	WriteOpInsert WriteOpType = iota + 1
	WriteOpDelete
)

// WriteOp is one branch of a composed write. Inserts use the Conflict/Durability
// of the surrounding WriteOptions, deletes fail with ErrNotFound if the row is missing.
type WriteOp struct {
	Type  WriteOpType
	Key   []byte
	Value any
}

// WriteResult summarizes a write the way a document store reports it.
// Errors counts failed operations, FirstError/FirstErrorCode describe the first one.
type WriteResult struct {
	Inserted       int
	Replaced       int
	Deleted        int
	Errors         int
	FirstError     string
	FirstErrorCode ErrCode
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ICursor is a streaming handle over the result of Run.
type ICursor interface {
	// Next returns the next row. When the cursor is drained it returns ErrCursorExhausted.
	Next(ctx context.Context) (row Row, err error)
	// Close releases the cursor. Closing an already closed cursor is a no-op.
	Close() (err error)
}

// IBackend is the contract every queryable document store has to satisfy.
// Tables are keyed by the primary key field PK and carry one value field.
type IBackend interface {
	// OpenTable makes sure the table exists (creating it if allowed) and that its
	// primary key is PK. It fails with ErrTableExists, ErrTableNotFound or ErrInvalidPrimaryKey.
	OpenTable(ctx context.Context, table string, opts OpenOptions) (err error)
	// DropTable removes the table and all of its rows.
	DropTable(ctx context.Context, table string) (err error)
	// Get returns the row for key or ErrNotFound.
	Get(ctx context.Context, table string, key []byte) (row Row, err error)
	// Insert writes a row honoring opts.Conflict.
	Insert(ctx context.Context, table string, row Row, opts WriteOptions) (res WriteResult, err error)
	// Delete removes the row for key. A missing row is reported through the WriteResult.
	Delete(ctx context.Context, table string, key []byte, opts WriteOptions) (res WriteResult, err error)
	// Apply executes all ops as one request, in order. It stops at the first failed
	// op; ops applied before it stay applied.
	Apply(ctx context.Context, table string, ops []WriteOp, opts WriteOptions) (res WriteResult, err error)
	// Run executes a query and returns a cursor over its rows.
	Run(ctx context.Context, q Query) (cursor ICursor, err error)
	// Count returns the number of rows whose key lies in [low, high].
	Count(ctx context.Context, table string, low, high []byte) (n uint64, err error)
	// Close releases the backend.
	Close() (err error)
}
