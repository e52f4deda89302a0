package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendFactory creates a new, empty instance of a query.IBackend implementation.
// The backend is closed by the test suite.
type BackendFactory func(t *testing.T) query.IBackend

const table = "test_table"

// RunBackendTests runs the conformance suite for a query.IBackend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		tests := []struct {
			name string
			fn   func(t *testing.T, backend query.IBackend)
		}{
			{name: "OpenTable", fn: testOpenTable},
			{name: "DropTable", fn: testDropTable},
			{name: "InsertGet", fn: testInsertGet},
			{name: "ConflictModes", fn: testConflictModes},
			{name: "Delete", fn: testDelete},
			{name: "ApplyStopsAtFirstError", fn: testApplyStopsAtFirstError},
			{name: "RunOrder", fn: testRunOrder},
			{name: "RunFilters", fn: testRunFilters},
			{name: "RunLimit", fn: testRunLimit},
			{name: "RunInvalidQuery", fn: testRunInvalidQuery},
			{name: "CursorClose", fn: testCursorClose},
			{name: "Count", fn: testCount},
			{name: "Durability", fn: testDurability},
			{name: "Closed", fn: testClosed},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				backend := factory(t)
				defer backend.Close() //nolint:errcheck

				tc.fn(t, backend)
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func openTable(t *testing.T, backend query.IBackend) {
	err := backend.OpenTable(context.Background(), table, query.OpenOptions{CreateIfMissing: true})
	require.NoError(t, err)
}

func insert(t *testing.T, backend query.IBackend, key string, value any) {
	res, err := backend.Insert(context.Background(), table, query.Row{Key: []byte(key), Value: value}, query.WriteOptions{})
	require.NoError(t, err)
	require.Zero(t, res.Errors, res.FirstError)
}

func fill(t *testing.T, backend query.IBackend, n int) []string {
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%02d", i)
		insert(t, backend, key, fmt.Sprintf("value%02d", i))
		keys = append(keys, key)
	}
	return keys
}

func collect(t *testing.T, backend query.IBackend, q query.Query) []string {
	cursor, err := backend.Run(context.Background(), q)
	require.NoError(t, err)
	defer cursor.Close() //nolint:errcheck

	var keys []string
	for {
		row, err := cursor.Next(context.Background())
		if errors.Is(err, query.ErrCursorExhausted) {
			return keys
		}
		require.NoError(t, err)
		keys = append(keys, string(row.Key))
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func testOpenTable(t *testing.T, backend query.IBackend) {
	ctx := context.Background()

	err := backend.OpenTable(ctx, table, query.OpenOptions{})
	assert.ErrorIs(t, err, query.ErrTableNotFound)

	err = backend.OpenTable(ctx, table, query.OpenOptions{CreateIfMissing: true})
	require.NoError(t, err)

	// opening again is fine
	err = backend.OpenTable(ctx, table, query.OpenOptions{CreateIfMissing: true})
	require.NoError(t, err)

	err = backend.OpenTable(ctx, table, query.OpenOptions{ErrorIfExists: true})
	assert.ErrorIs(t, err, query.ErrTableExists)
}

func testDropTable(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)
	fill(t, backend, 5)

	require.NoError(t, backend.DropTable(ctx, table))

	err := backend.OpenTable(ctx, table, query.OpenOptions{})
	assert.ErrorIs(t, err, query.ErrTableNotFound)

	err = backend.DropTable(ctx, table)
	assert.ErrorIs(t, err, query.ErrTableNotFound)

	// a recreated table starts empty
	openTable(t, backend)
	assert.Empty(t, collect(t, backend, query.Table(table)))
}

func testInsertGet(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)

	insert(t, backend, "str", "hello")
	insert(t, backend, "bin", []byte{0x00, 0xff, 0x10})

	row, err := backend.Get(ctx, table, []byte("str"))
	require.NoError(t, err)
	assert.Equal(t, []byte("str"), row.Key)
	assert.Equal(t, "hello", row.Value)

	row, err = backend.Get(ctx, table, []byte("bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, row.Value)

	_, err = backend.Get(ctx, table, []byte("missing"))
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func testConflictModes(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)

	row := query.Row{Key: []byte("k"), Value: "v1"}
	res, err := backend.Insert(ctx, table, row, query.WriteOptions{Conflict: query.ConflictError})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	row.Value = "v2"
	res, err = backend.Insert(ctx, table, row, query.WriteOptions{Conflict: query.ConflictError})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, query.ErrCConflict, res.FirstErrorCode)

	got, err := backend.Get(ctx, table, row.Key)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value)

	for _, conflict := range []query.Conflict{query.ConflictUpdate, query.ConflictReplace} {
		res, err = backend.Insert(ctx, table, row, query.WriteOptions{Conflict: conflict})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Replaced)
		assert.Zero(t, res.Errors)
	}

	got, err = backend.Get(ctx, table, row.Key)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Value)
}

func testDelete(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)
	insert(t, backend, "k", "v")

	res, err := backend.Delete(ctx, table, []byte("k"), query.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	_, err = backend.Get(ctx, table, []byte("k"))
	assert.ErrorIs(t, err, query.ErrNotFound)

	res, err = backend.Delete(ctx, table, []byte("k"), query.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, query.ErrCNotFound, res.FirstErrorCode)
	assert.Error(t, query.ErrorFromCode(res.FirstErrorCode, res.FirstError))
}

func testApplyStopsAtFirstError(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)

	ops := []query.WriteOp{
		{Type: query.WriteOpInsert, Key: []byte("a"), Value: "1"},
		{Type: query.WriteOpDelete, Key: []byte("a")},
		{Type: query.WriteOpInsert, Key: []byte("b"), Value: "2"},
		{Type: query.WriteOpDelete, Key: []byte("missing")},
		{Type: query.WriteOpInsert, Key: []byte("c"), Value: "3"},
	}
	res, err := backend.Apply(ctx, table, ops, query.WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, query.ErrCNotFound, res.FirstErrorCode)

	// ops before the failure stay applied, ops after it never ran
	assert.Equal(t, []string{"b"}, collect(t, backend, query.Table(table)))
}

func testRunOrder(t *testing.T, backend query.IBackend) {
	openTable(t, backend)
	insert(t, backend, "b", "")
	insert(t, backend, "a", "")
	insert(t, backend, "ab", "")
	insert(t, backend, "\xff", "")
	insert(t, backend, "B", "")

	asc := collect(t, backend, query.Table(table))
	assert.Equal(t, []string{"B", "a", "ab", "b", "\xff"}, asc)

	desc := collect(t, backend, query.Table(table).OrderBy(query.Desc))
	assert.Equal(t, []string{"\xff", "b", "ab", "a", "B"}, desc)
}

func testRunFilters(t *testing.T, backend query.IBackend) {
	openTable(t, backend)
	keys := fill(t, backend, 10)
	pk := query.Field(query.PK)

	tests := []struct {
		name  string
		query query.Query
		want  []string
	}{
		{"gt", query.Table(table).Filter(pk.Gt([]byte("key07"))), keys[8:]},
		{"gte", query.Table(table).Filter(pk.Gte([]byte("key07"))), keys[7:]},
		{"lt", query.Table(table).Filter(pk.Lt([]byte("key02"))), keys[:2]},
		{"lte", query.Table(table).Filter(pk.Lte([]byte("key02"))), keys[:3]},
		{"eq", query.Table(table).Filter(pk.Eq([]byte("key05"))), keys[5:6]},
		{"eq missing", query.Table(table).Filter(pk.Eq([]byte("key05x"))), nil},
		{"between", query.Table(table).Filter(pk.Gt([]byte("key02"))).Filter(pk.Lt([]byte("key06"))), keys[3:6]},
		{"between not in table", query.Table(table).Filter(pk.Gte([]byte("key025"))).Filter(pk.Lte([]byte("key055"))), keys[3:6]},
		{"contradiction", query.Table(table).Filter(pk.Gt([]byte("key06"))).Filter(pk.Lt([]byte("key03"))), nil},
		{"prefix is smaller", query.Table(table).Filter(pk.Gt([]byte("key"))), keys},
		{"tightest wins", query.Table(table).Filter(pk.Gte([]byte("key01"))).Filter(pk.Gte([]byte("key08"))), keys[8:]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, collect(t, backend, tc.query))
		})
	}

	// reverse order with bounds
	got := collect(t, backend, query.Table(table).Filter(pk.Lte([]byte("key04"))).OrderBy(query.Desc))
	assert.Equal(t, []string{"key04", "key03", "key02", "key01", "key00"}, got)
}

func testRunLimit(t *testing.T, backend query.IBackend) {
	openTable(t, backend)
	keys := fill(t, backend, 10)

	assert.Equal(t, keys[:3], collect(t, backend, query.Table(table).Limit(3)))
	assert.Equal(t, []string{"key09", "key08"}, collect(t, backend, query.Table(table).OrderBy(query.Desc).Limit(2)))
	assert.Empty(t, collect(t, backend, query.Table(table).Limit(0)))
	assert.Equal(t, keys, collect(t, backend, query.Table(table).Limit(-1)))
	assert.Equal(t, keys, collect(t, backend, query.Table(table).Limit(100)))
}

func testRunInvalidQuery(t *testing.T, backend query.IBackend) {
	openTable(t, backend)

	_, err := backend.Run(context.Background(), query.Table(table).Filter(query.Field("value").Eq([]byte("x"))))
	assert.Error(t, err)
}

func testCursorClose(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)
	fill(t, backend, 3)

	cursor, err := backend.Run(ctx, query.Table(table))
	require.NoError(t, err)

	row, err := cursor.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("key00"), row.Key)

	require.NoError(t, cursor.Close())
	require.NoError(t, cursor.Close())

	_, err = cursor.Next(ctx)
	assert.ErrorIs(t, err, query.ErrCursorExhausted)

	// a drained cursor keeps reporting exhaustion
	cursor, err = backend.Run(ctx, query.Table(table).Limit(1))
	require.NoError(t, err)
	defer cursor.Close() //nolint:errcheck

	_, err = cursor.Next(ctx)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = cursor.Next(ctx)
		assert.ErrorIs(t, err, query.ErrCursorExhausted)
	}
}

func testCount(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)
	fill(t, backend, 10)

	n, err := backend.Count(ctx, table, []byte("key02"), []byte("key05"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	n, err = backend.Count(ctx, table, []byte("a"), []byte("z"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	n, err = backend.Count(ctx, table, []byte("key05"), []byte("key02"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testDurability(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)

	for _, d := range []query.Durability{query.DurabilitySoft, query.DurabilityHard} {
		key := []byte(fmt.Sprintf("durability-%d", d))
		res, err := backend.Insert(ctx, table, query.Row{Key: key, Value: "v"}, query.WriteOptions{Durability: d})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)

		_, err = backend.Get(ctx, table, key)
		require.NoError(t, err)
	}
}

func testClosed(t *testing.T, backend query.IBackend) {
	ctx := context.Background()
	openTable(t, backend)

	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	_, err := backend.Get(ctx, table, []byte("k"))
	assert.ErrorIs(t, err, query.ErrClosed)

	_, err = backend.Run(ctx, query.Table(table))
	assert.ErrorIs(t, err, query.ErrClosed)
}
