package ldown

import (
	"context"

	"github.com/ValentinKolb/kvdown/lib/db"
	"github.com/ValentinKolb/kvdown/lib/down"
)

// iteratorImpl steps an integer cursor over a sorted snapshot of the keys.
// Values are looked up in the live store; keys removed after the snapshot
// are skipped.
type iteratorImpl struct {
	store db.KVDB
	keys  []string

	interval   down.Interval
	reverse    bool
	limit      int
	current    int
	iterations int

	key, value []byte
	err        error
	closed     bool
}

func newIterator(store db.KVDB, opts *down.IteratorOptions) *iteratorImpl {
	keys := snapshot(store)
	iv := down.Resolve(keys, opts)

	it := &iteratorImpl{
		store:    store,
		keys:     keys,
		interval: iv,
		reverse:  opts.Reverse,
		limit:    opts.MaxRecords(),
		current:  iv.Low,
	}
	if it.reverse {
		it.current = iv.High
	}
	return it
}

func (it *iteratorImpl) Next(ctx context.Context) bool {
	it.key, it.value = nil, nil
	if it.closed || it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = down.NormalizeError(err)
		return false
	}

	for {
		if it.limit >= 0 && it.iterations >= it.limit {
			return false
		}
		if it.reverse && it.current < it.interval.Low || !it.reverse && it.current > it.interval.High {
			return false
		}

		key := it.keys[it.current]
		if it.reverse {
			it.current--
		} else {
			it.current++
		}

		raw, ok := it.store.GetItem(key)
		if !ok {
			continue
		}

		it.iterations++
		it.key = down.Bytes(key)
		it.value = down.Bytes(raw)
		return true
	}
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

func (it *iteratorImpl) Close() error {
	it.closed = true
	it.keys = nil
	it.key, it.value = nil, nil
	return nil
}
