package down

import "context"

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// OpenOptions control how Open treats a missing or an existing store.
type OpenOptions struct {
	CreateIfMissing bool // Create the store if it does not exist (default true)
	ErrorIfExists   bool // Fail if the store already exists (default false)
}

// DefaultOpenOptions returns the options used when Open is called with nil.
func DefaultOpenOptions() *OpenOptions {
	return &OpenOptions{CreateIfMissing: true}
}

// WriteOptions are passed through to the backend on every write.
// Sync requests that the write is persisted before it is acknowledged.
type WriteOptions struct {
	Sync bool
}

// IteratorOptions describe a key range. A bound with zero length is absent.
//
// Without Reverse, Start and Gte are inclusive lower bounds, End and Lte
// inclusive upper bounds, Gt and Lt exclusive ones. With Reverse the range is
// walked from high to low keys and every bound is mirrored: Start and Gte
// become inclusive upper bounds, End and Lte inclusive lower bounds, Gt an
// exclusive upper and Lt an exclusive lower bound.
type IteratorOptions struct {
	Start, End []byte
	Gt, Gte    []byte
	Lt, Lte    []byte
	Reverse    bool
	Limit      *int // maximum number of records, nil or negative means unlimited
}

// Limit returns a limit of n records for IteratorOptions.Limit. Limit(0)
// yields no records.
func Limit(n int) *int {
	return &n
}

// MaxRecords returns the record limit, -1 when there is none.
func (o *IteratorOptions) MaxRecords() int {
	if o == nil || o.Limit == nil || *o.Limit < 0 {
		return -1
	}
	return *o.Limit
}

// DefaultIteratorOptions returns options for an unbounded, ascending, unlimited range.
func DefaultIteratorOptions() *IteratorOptions {
	return &IteratorOptions{}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IDown is the contract of an ordered key-value store driver. All errors
// returned by an implementation are *Error values, see errors.go.
type IDown interface {
	// Open connects to (and if allowed creates) the store. A nil opts means DefaultOpenOptions.
	Open(ctx context.Context, opts *OpenOptions) (err error)
	// Close releases the store. Closing a closed store is a no-op.
	Close() (err error)
	// Get returns the value for key or an error matching ErrNotFound.
	Get(ctx context.Context, key []byte) (value []byte, err error)
	// Put stores value for key. A nil or empty value is stored as the canonical empty value.
	Put(ctx context.Context, key, value []byte, opts *WriteOptions) (err error)
	// Delete removes key or fails with an error matching ErrNotFound.
	Delete(ctx context.Context, key []byte, opts *WriteOptions) (err error)
	// Batch applies ops in order. Atomicity depends on the implementation.
	Batch(ctx context.Context, ops []BatchOp, opts *WriteOptions) (err error)
	// NewIterator returns an iterator over the range described by opts.
	// A nil opts means DefaultIteratorOptions.
	NewIterator(ctx context.Context, opts *IteratorOptions) (it Iterator, err error)
	// ApproximateSize returns the number of records in [start, end]. Both are required.
	ApproximateSize(ctx context.Context, start, end []byte) (size uint64, err error)
}

// Iterator walks a key range. Next must not be called concurrently on one
// iterator, but several iterators over the same store may coexist.
//
//	it, err := store.NewIterator(ctx, opts)
//	...
//	defer it.Close()
//	for it.Next(ctx) {
//		use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator interface {
	// Next advances to the next record. It returns false at the end of the
	// range, when the limit is reached, after Close, or on error (see Err).
	Next(ctx context.Context) (ok bool)
	// Key returns the key of the current record.
	Key() (key []byte)
	// Value returns the value of the current record.
	Value() (value []byte)
	// Err returns the error that stopped the iteration, nil at a regular end.
	Err() (err error)
	// Seek is not supported and always fails with ErrUnsupportedOperation.
	Seek(key []byte) (err error)
	// Close releases the iterator. It is safe to call at any point and more than once.
	Close() (err error)
}
