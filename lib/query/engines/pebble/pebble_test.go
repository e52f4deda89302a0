package pebble

import (
	"context"
	"testing"

	"github.com/ValentinKolb/kvdown/lib/query"
	querytesting "github.com/ValentinKolb/kvdown/lib/query/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPebbleBackend(t *testing.T) {
	querytesting.RunBackendTests(t, "Pebble", func(t *testing.T) query.IBackend {
		backend, err := NewPebbleBackend(t.TempDir())
		require.NoError(t, err)
		return backend
	})
}

func TestTablesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPebbleBackend(t.TempDir())
	require.NoError(t, err)
	defer backend.Close() //nolint:errcheck

	// "ab" is a prefix of "abc", their rows must not leak into each other
	for _, table := range []string{"ab", "abc"} {
		require.NoError(t, backend.OpenTable(ctx, table, query.OpenOptions{CreateIfMissing: true}))
		_, err := backend.Insert(ctx, table, query.Row{Key: []byte("k"), Value: table}, query.WriteOptions{})
		require.NoError(t, err)
	}

	cursor, err := backend.Run(ctx, query.Table("ab"))
	require.NoError(t, err)
	defer cursor.Close() //nolint:errcheck

	row, err := cursor.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ab", row.Value)

	_, err = cursor.Next(ctx)
	assert.ErrorIs(t, err, query.ErrCursorExhausted)

	n, err := backend.Count(ctx, "abc", []byte("a"), []byte("z"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestValueEncoding(t *testing.T) {
	for _, v := range []any{nil, "", "text", []byte{}, []byte{0x00, 0x01}} {
		raw, err := encodeValue(v)
		require.NoError(t, err)

		got, err := decodeValue(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := encodeValue(42)
	assert.Error(t, err)

	_, err = decodeValue([]byte{0x7f})
	assert.Error(t, err)
}

func TestInvalidTableName(t *testing.T) {
	backend, err := NewPebbleBackend(t.TempDir())
	require.NoError(t, err)
	defer backend.Close() //nolint:errcheck

	err = backend.OpenTable(context.Background(), "bad\x00name", query.OpenOptions{CreateIfMissing: true})
	assert.Error(t, err)
}

func TestDrainedCursorReleasesIterator(t *testing.T) {
	ctx := context.Background()
	backend, err := NewPebbleBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.OpenTable(ctx, "t", query.OpenOptions{CreateIfMissing: true}))
	for _, k := range []string{"a", "b", "c"} {
		_, err := backend.Insert(ctx, "t", query.Row{Key: []byte(k), Value: k}, query.WriteOptions{})
		require.NoError(t, err)
	}

	// one cursor runs out of rows, the other stops at its limit
	for _, q := range []query.Query{query.Table("t"), query.Table("t").Limit(1)} {
		cursor, err := backend.Run(ctx, q)
		require.NoError(t, err)
		for {
			_, err := cursor.Next(ctx)
			if err != nil {
				require.ErrorIs(t, err, query.ErrCursorExhausted)
				break
			}
		}
		_, err = cursor.Next(ctx)
		assert.ErrorIs(t, err, query.ErrCursorExhausted)
	}

	// pebble refuses to close with open iterators
	assert.NoError(t, backend.Close())
}
