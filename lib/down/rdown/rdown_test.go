package rdown

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/down"
	downtesting "github.com/ValentinKolb/kvdown/lib/down/testing"
	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/lib/query/engines/pebble"
	"github.com/ValentinKolb/kvdown/lib/query/engines/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteBackend(t *testing.T) query.IBackend {
	backend, err := sqlite.NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func pebbleBackend(t *testing.T) query.IBackend {
	backend, err := pebble.NewPebbleBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestSQLite(t *testing.T) {
	downtesting.RunDownTests(t, "RemoteDOWN/SQLite", func(t *testing.T) down.IDown {
		return New("test-db", sqliteBackend(t))
	})
}

func TestPebble(t *testing.T) {
	downtesting.RunDownTests(t, "RemoteDOWN/Pebble", func(t *testing.T) down.IDown {
		return New("test-db", pebbleBackend(t))
	})
}

func TestTableName(t *testing.T) {
	tests := []struct {
		location, table string
	}{
		{"db", "db"},
		{"my-db", "my_db"},
		{"/var/data/my db!!", "_var_data_my_db_"},
		{"already_fine_1", "already_fine_1"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.table, TableName(tc.location), tc.location)
	}
}

func TestOpenOptions(t *testing.T) {
	ctx := context.Background()
	backend := sqliteBackend(t)

	err := New("db", backend).Open(ctx, &down.OpenOptions{CreateIfMissing: false})
	assert.ErrorIs(t, err, down.ErrConnection)
	assert.ErrorIs(t, err, query.ErrTableNotFound)

	d := New("db", backend)
	require.NoError(t, d.Open(ctx, nil))
	require.NoError(t, d.Close())

	err = New("db", backend).Open(ctx, &down.OpenOptions{CreateIfMissing: true, ErrorIfExists: true})
	assert.ErrorIs(t, err, down.ErrConnection)
	assert.ErrorIs(t, err, query.ErrTableExists)

	require.NoError(t, New("db", backend).Open(ctx, &down.OpenOptions{}))
}

func TestNoBackend(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, New("db", nil).Open(ctx, nil), down.ErrInvalidParameter)
	assert.ErrorIs(t, New("", sqliteBackend(t)).Open(ctx, nil), down.ErrInvalidParameter)
	assert.ErrorIs(t, Destroy(ctx, nil, "db"), down.ErrInvalidParameter)
}

func TestBatchIsValidatedFirst(t *testing.T) {
	ctx := context.Background()
	d := New("db", sqliteBackend(t))
	require.NoError(t, d.Open(ctx, nil))
	defer d.Close() //nolint:errcheck

	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("before"), Value: []byte("1")},
		{Type: "xyz", Key: []byte("bad")},
	}
	err := d.Batch(ctx, ops, nil)
	assert.ErrorIs(t, err, down.ErrInvalidBatchOperation)

	// the valid op in front of the invalid one was never sent
	_, err = d.Get(ctx, []byte("before"))
	assert.ErrorIs(t, err, down.ErrNotFound)
}

func TestBatchKeepsAppliedOps(t *testing.T) {
	ctx := context.Background()
	d := New("db", pebbleBackend(t))
	require.NoError(t, d.Open(ctx, nil))
	defer d.Close() //nolint:errcheck

	ops := []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("before"), Value: []byte("1")},
		{Type: down.BatchDel, Key: []byte("missing")},
		{Type: down.BatchPut, Key: []byte("after"), Value: []byte("2")},
	}
	assert.ErrorIs(t, d.Batch(ctx, ops, &down.WriteOptions{Sync: true}), down.ErrNotFound)

	value, err := d.Get(ctx, []byte("before"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	_, err = d.Get(ctx, []byte("after"))
	assert.ErrorIs(t, err, down.ErrNotFound)
}

func TestTextValues(t *testing.T) {
	ctx := context.Background()
	backend := sqliteBackend(t)
	d := New("db", backend)
	require.NoError(t, d.Open(ctx, nil))
	defer d.Close() //nolint:errcheck

	// rows written by other clients may hold text values
	_, err := backend.Insert(ctx, "db", query.Row{Key: []byte("text"), Value: "hello"}, query.WriteOptions{})
	require.NoError(t, err)
	_, err = backend.Insert(ctx, "db", query.Row{Key: []byte("null"), Value: nil}, query.WriteOptions{})
	require.NoError(t, err)

	value, err := d.Get(ctx, []byte("text"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)

	value, err = d.Get(ctx, []byte("null"))
	require.NoError(t, err)
	assert.Equal(t, []byte{}, value)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	backend := pebbleBackend(t)

	d := New("my-db", backend)
	require.NoError(t, d.Open(ctx, nil))
	require.NoError(t, d.Put(ctx, []byte("k"), []byte("v"), nil))
	require.NoError(t, d.Close())

	require.NoError(t, Destroy(ctx, backend, "my-db"))

	err := New("my-db", backend).Open(ctx, &down.OpenOptions{})
	assert.ErrorIs(t, err, query.ErrTableNotFound)

	assert.Error(t, Destroy(ctx, backend, "my-db"))
	assert.ErrorIs(t, Repair(ctx, backend, "my-db"), down.ErrUnsupportedOperation)
}

// --------------------------------------------------------------------------
// Failing backend
// --------------------------------------------------------------------------

type failingCursor struct {
	rows    []query.Row
	failAt  int
	calls   int
	closed  int
	closeFn func() error
}

func (c *failingCursor) Next(context.Context) (query.Row, error) {
	defer func() { c.calls++ }()
	if c.calls == c.failAt {
		return query.Row{}, &query.DriverError{Msg: "cursor lost"}
	}
	if c.calls >= len(c.rows) {
		return query.Row{}, query.ErrCursorExhausted
	}
	return c.rows[c.calls], nil
}

func (c *failingCursor) Close() error {
	c.closed++
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

type fakeBackend struct {
	query.IBackend
	cursor  *failingCursor
	lastRun query.Query
	openErr error
	result  query.WriteResult
}

func (b *fakeBackend) OpenTable(context.Context, string, query.OpenOptions) error {
	return b.openErr
}

func (b *fakeBackend) Run(_ context.Context, q query.Query) (query.ICursor, error) {
	b.lastRun = q
	return b.cursor, nil
}

func (b *fakeBackend) Insert(context.Context, string, query.Row, query.WriteOptions) (query.WriteResult, error) {
	return b.result, nil
}

func TestIteratorQuery(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{cursor: &failingCursor{failAt: -1}}
	d := New("db", backend)
	require.NoError(t, d.Open(ctx, nil))

	it, err := d.NewIterator(ctx, &down.IteratorOptions{Gt: []byte("a"), Lte: []byte("m"), Reverse: true, Limit: down.Limit(3)})
	require.NoError(t, err)
	require.NoError(t, it.Close())

	want := query.Table("db").
		Filter(query.Field(query.PK).Lt([]byte("a"))).
		Filter(query.Field(query.PK).Gte([]byte("m"))).
		OrderBy(query.Desc).
		Limit(3)
	assert.Equal(t, want, backend.lastRun)
}

func TestIteratorCursorError(t *testing.T) {
	ctx := context.Background()
	cursor := &failingCursor{
		rows:   []query.Row{{Key: []byte("a"), Value: "1"}, {Key: []byte("b"), Value: []byte("2")}},
		failAt: 1,
	}
	d := New("db", &fakeBackend{cursor: cursor})
	require.NoError(t, d.Open(ctx, nil))

	it, err := d.NewIterator(ctx, nil)
	require.NoError(t, err)

	require.True(t, it.Next(ctx))
	assert.Equal(t, []byte("a"), it.Key())
	assert.Equal(t, []byte("1"), it.Value())

	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), down.ErrBackendDriver)
	assert.Equal(t, "BackendDriverError: cursor lost", it.Err().Error())
	assert.Nil(t, it.Key())
	assert.Equal(t, 1, cursor.closed, "a failed cursor is closed")

	// the cursor is not closed a second time
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, 1, cursor.closed)
}

func TestIteratorExhaustionClosesCursor(t *testing.T) {
	ctx := context.Background()
	cursor := &failingCursor{failAt: -1, rows: []query.Row{{Key: []byte("a"), Value: "1"}}}
	d := New("db", &fakeBackend{cursor: cursor})
	require.NoError(t, d.Open(ctx, nil))

	it, err := d.NewIterator(ctx, nil)
	require.NoError(t, err)

	require.True(t, it.Next(ctx))
	assert.False(t, it.Next(ctx))
	assert.NoError(t, it.Err())
	assert.Equal(t, 1, cursor.closed, "a drained cursor is closed")

	assert.False(t, it.Next(ctx))
	require.NoError(t, it.Close())
	assert.Equal(t, 1, cursor.closed)
}

func TestIteratorExhaustionCloseError(t *testing.T) {
	ctx := context.Background()
	cursor := &failingCursor{failAt: -1, closeFn: func() error { return errors.New("connection reset") }}
	d := New("db", &fakeBackend{cursor: cursor})
	require.NoError(t, d.Open(ctx, nil))

	it, err := d.NewIterator(ctx, nil)
	require.NoError(t, err)

	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), down.ErrBackendDriver)
	assert.NoError(t, it.Close())
	assert.Equal(t, 1, cursor.closed)
}

// pebble refuses to close while iterators are open
func TestDrainedIteratorWithoutClose(t *testing.T) {
	ctx := context.Background()
	backend, err := pebble.NewPebbleBackend(t.TempDir())
	require.NoError(t, err)

	d := New("db", backend)
	require.NoError(t, d.Open(ctx, nil))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, d.Put(ctx, []byte(k), []byte(k), nil))
	}

	it, err := d.NewIterator(ctx, down.DefaultIteratorOptions())
	require.NoError(t, err)
	n := 0
	for it.Next(ctx) {
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 3, n)

	require.NoError(t, d.Close())
	assert.NoError(t, backend.Close())
}

func TestIteratorCloseError(t *testing.T) {
	ctx := context.Background()
	cursor := &failingCursor{failAt: -1, closeFn: func() error { return errors.New("connection reset") }}
	d := New("db", &fakeBackend{cursor: cursor})
	require.NoError(t, d.Open(ctx, nil))

	it, err := d.NewIterator(ctx, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, it.Close(), down.ErrBackendDriver)
	assert.NoError(t, it.Close())
	assert.Equal(t, 1, cursor.closed)
}

func TestIteratorCancelClosesCursor(t *testing.T) {
	cursor := &failingCursor{failAt: -1, rows: []query.Row{{Key: []byte("a")}}}
	d := New("db", &fakeBackend{cursor: cursor})
	require.NoError(t, d.Open(context.Background(), nil))

	it, err := d.NewIterator(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Equal(t, 1, cursor.closed)
}

func TestWriteResultErrors(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	d := New("db", backend)
	require.NoError(t, d.Open(ctx, nil))

	backend.result = query.WriteResult{Errors: 1, FirstError: "Duplicate primary key k", FirstErrorCode: query.ErrCConflict}
	err := d.Put(ctx, []byte("k"), []byte("v"), nil)
	assert.ErrorIs(t, err, query.ErrConflict)
	assert.ErrorIs(t, err, down.ErrBackendDriver)

	backend.result = query.WriteResult{Errors: 1, FirstError: "disk full", FirstErrorCode: query.ErrCDriver}
	err = d.Put(ctx, []byte("k"), []byte("v"), nil)
	assert.Equal(t, "BackendDriverError: disk full", err.Error())
}

func TestInvalidPrimaryKey(t *testing.T) {
	backend := &fakeBackend{openErr: query.ErrInvalidPrimaryKey}
	err := New("db", backend).Open(context.Background(), nil)
	assert.ErrorIs(t, err, down.ErrConnection)
	assert.ErrorIs(t, err, query.ErrInvalidPrimaryKey)
}
