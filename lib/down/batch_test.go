package down

import (
	"context"
	"errors"
	"testing"
)

// recorder is an IDown that only records batches
type recorder struct {
	IDown
	batches [][]BatchOp
}

func (r *recorder) Batch(_ context.Context, ops []BatchOp, _ *WriteOptions) error {
	r.batches = append(r.batches, ops)
	return nil
}

func TestValidateBatch(t *testing.T) {
	ops := []BatchOp{
		{Type: BatchPut, Key: []byte("a"), Value: []byte("1")},
		{Type: BatchDel, Key: []byte("a")},
		{Type: "xyz", Key: []byte("b")},
		{Type: BatchPut},
	}

	err := ValidateBatch(ops)
	if !errors.Is(err, ErrInvalidBatchOperation) {
		t.Fatalf("Expected ErrInvalidBatchOperation, got %v", err)
	}

	err = ValidateBatch(ops[3:])
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for a missing key, got %v", err)
	}

	if err := ValidateBatch(ops[:2]); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestChainedBatch(t *testing.T) {
	db := &recorder{}
	batch := NewChainedBatch(db)

	if err := batch.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := batch.Put(nil, []byte("1")); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for an empty key, got %v", err)
	}
	if err := batch.Clear(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_ = batch.Put([]byte("b"), []byte("2"))
	_ = batch.Del([]byte("c"))

	if batch.Len() != 2 {
		t.Errorf("Expected 2 queued operations, got %d", batch.Len())
	}
	if err := batch.Write(context.Background(), nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(db.batches) != 1 || len(db.batches[0]) != 2 || db.batches[0][1].Type != BatchDel {
		t.Errorf("Unexpected batches: %+v", db.batches)
	}

	// a written batch is done
	if err := batch.Write(context.Background(), nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter on second write, got %v", err)
	}
	if err := batch.Put([]byte("d"), nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter on put after write, got %v", err)
	}

	if err := NewChainedBatch(nil).Put([]byte("a"), nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter without a store, got %v", err)
	}
}
