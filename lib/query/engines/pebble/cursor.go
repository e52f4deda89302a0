package pebble

import (
	"context"
	"sync"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// cursorImpl walks a pebble iterator. The iterator reads from the implicit
// snapshot taken when it was created.
type cursorImpl struct {
	mu sync.Mutex

	iter    *pebble.Iterator
	prefix  int
	query   query.Query
	started bool
	emitted int
	done    bool
}

func (c *cursorImpl) Next(ctx context.Context) (query.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return query.Row{}, c.exhausted()
	}
	if err := ctx.Err(); err != nil {
		return query.Row{}, err
	}

	for {
		if !c.advance() {
			if err := c.iter.Error(); err != nil {
				return query.Row{}, errors.Wrap(err, "pebble: read row")
			}
			c.done = true
			return query.Row{}, c.exhausted()
		}

		key := make([]byte, len(c.iter.Key())-c.prefix)
		copy(key, c.iter.Key()[c.prefix:])
		if !c.query.Matches(key) {
			continue
		}

		raw, err := c.iter.ValueAndErr()
		if err != nil {
			return query.Row{}, errors.Wrap(err, "pebble: read value")
		}
		value, err := decodeValue(raw)
		if err != nil {
			return query.Row{}, err
		}

		c.emitted++
		if c.query.RowLimit >= 0 && c.emitted >= c.query.RowLimit {
			c.done = true
		}
		return query.Row{Key: key, Value: value}, nil
	}
}

// exhausted releases the iterator of a drained cursor. It returns
// ErrCursorExhausted unless closing the iterator failed.
func (c *cursorImpl) exhausted() error {
	if c.iter == nil {
		return query.ErrCursorExhausted
	}
	iter := c.iter
	c.iter = nil
	if err := iter.Close(); err != nil {
		return errors.Wrap(err, "pebble: close iterator")
	}
	return query.ErrCursorExhausted
}

func (c *cursorImpl) advance() bool {
	if !c.started {
		c.started = true
		if c.query.Order == query.Desc {
			return c.iter.Last()
		}
		return c.iter.First()
	}
	if c.query.Order == query.Desc {
		return c.iter.Prev()
	}
	return c.iter.Next()
}

func (c *cursorImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done = true
	if c.iter == nil {
		return nil
	}
	iter := c.iter
	c.iter = nil
	return iter.Close()
}
