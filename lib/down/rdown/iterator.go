package rdown

import (
	"context"
	"errors"

	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/ValentinKolb/kvdown/lib/query"
)

// iteratorImpl pulls rows one at a time from a backend cursor.
type iteratorImpl struct {
	cursor query.ICursor

	key, value []byte
	err        error
	done       bool
}

func (it *iteratorImpl) Next(ctx context.Context) bool {
	it.key, it.value = nil, nil
	if it.done || it.err != nil {
		return false
	}

	// a canceled caller closes the remote cursor
	if err := ctx.Err(); err != nil {
		it.fail(err)
		return false
	}

	row, err := it.cursor.Next(ctx)
	if errors.Is(err, query.ErrCursorExhausted) {
		// release the cursor right away, the caller may never call Close
		it.done = true
		if closeErr := it.release(); closeErr != nil {
			it.err = down.NormalizeError(closeErr)
		}
		return false
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		it.fail(err)
		return false
	}

	it.key = down.Bytes(row.Key)
	it.value = down.Bytes(row.Value)
	return true
}

func (it *iteratorImpl) fail(err error) {
	it.err = down.NormalizeError(err)
	if closeErr := it.release(); closeErr != nil {
		Logger.Warningf("closing cursor after %v: %v", err, closeErr)
	}
}

// release closes the backend cursor once. Later calls return nil.
func (it *iteratorImpl) release() error {
	if it.cursor == nil {
		return nil
	}
	cursor := it.cursor
	it.cursor = nil
	return cursor.Close()
}

func (it *iteratorImpl) Key() []byte {
	return it.key
}

func (it *iteratorImpl) Value() []byte {
	return it.value
}

func (it *iteratorImpl) Err() error {
	return it.err
}

func (it *iteratorImpl) Seek([]byte) error {
	return down.NewError(down.RetCUnsupportedOperation, "seek is not implemented")
}

// Close releases the remote cursor. Only the first call reaches the backend.
func (it *iteratorImpl) Close() error {
	it.key, it.value = nil, nil
	it.done = true
	if err := it.release(); err != nil {
		return down.NormalizeError(err)
	}
	return nil
}
