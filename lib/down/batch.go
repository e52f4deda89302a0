package down

import "context"

// BatchOpType is the type of a batch operation.
type BatchOpType string

const (
	BatchPut BatchOpType = "put"
	BatchDel BatchOpType = "del"
)

// BatchOp is one entry of a batch. Value is ignored for deletes.
type BatchOp struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

// ValidateKey rejects missing keys.
func ValidateKey(key []byte) error {
	if len(key) == 0 {
		return NewError(RetCInvalidParameter, "key cannot be empty")
	}
	return nil
}

// ValidateBatch checks every op of a batch. It returns an error for the
// first op with an unknown type or a missing key.
func ValidateBatch(ops []BatchOp) error {
	for i := range ops {
		if err := ValidateBatchOp(i, ops[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBatchOp checks a single op at position i of a batch.
func ValidateBatchOp(i int, op BatchOp) error {
	if op.Type != BatchPut && op.Type != BatchDel {
		return Errorf(RetCInvalidBatchOperation, "Invalid batch operation %q at index %d. Valid operations are %q and %q", op.Type, i, BatchPut, BatchDel)
	}
	if len(op.Key) == 0 {
		return Errorf(RetCInvalidParameter, "key of batch operation %d cannot be empty", i)
	}
	return nil
}

// --------------------------------------------------------------------------
// Chained Batch
// --------------------------------------------------------------------------

// ChainedBatch collects operations and writes them with a single Batch call.
// A chained batch can only be written once.
type ChainedBatch struct {
	db      IDown
	ops     []BatchOp
	written bool
}

// NewChainedBatch starts an empty batch against db.
func NewChainedBatch(db IDown) *ChainedBatch {
	return &ChainedBatch{db: db}
}

func (b *ChainedBatch) Put(key, value []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	b.ops = append(b.ops, BatchOp{Type: BatchPut, Key: key, Value: value})
	return nil
}

func (b *ChainedBatch) Del(key []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	b.ops = append(b.ops, BatchOp{Type: BatchDel, Key: key})
	return nil
}

// Clear drops all queued operations.
func (b *ChainedBatch) Clear() error {
	if err := b.check(); err != nil {
		return err
	}
	b.ops = nil
	return nil
}

// Len returns the number of queued operations.
func (b *ChainedBatch) Len() int {
	return len(b.ops)
}

// Write applies the queued operations.
func (b *ChainedBatch) Write(ctx context.Context, opts *WriteOptions) error {
	if err := b.check(); err != nil {
		return err
	}
	b.written = true
	return b.db.Batch(ctx, b.ops, opts)
}

func (b *ChainedBatch) check() error {
	if b.db == nil {
		return NewError(RetCInvalidParameter, "batch has no store")
	}
	if b.written {
		return NewError(RetCInvalidParameter, "write() already called on this batch")
	}
	return nil
}
