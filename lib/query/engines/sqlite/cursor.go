package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/pkg/errors"
)

// cursorImpl streams the rows of a SELECT. Rows are fetched lazily from SQLite
// as Next is called.
type cursorImpl struct {
	mu     sync.Mutex
	rows   *sql.Rows
	closed bool
}

func (c *cursorImpl) Next(ctx context.Context) (query.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return query.Row{}, query.ErrCursorExhausted
	}
	if err := ctx.Err(); err != nil {
		return query.Row{}, err
	}

	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return query.Row{}, errors.Wrap(err, "sqlite: read row")
		}
		return query.Row{}, query.ErrCursorExhausted
	}

	var (
		key   []byte
		value any
	)
	if err := c.rows.Scan(&key, &value); err != nil {
		return query.Row{}, errors.Wrap(err, "sqlite: scan row")
	}
	return query.Row{Key: key, Value: value}, nil
}

func (c *cursorImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
