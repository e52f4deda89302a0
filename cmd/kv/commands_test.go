package kv

import (
	"testing"

	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchOps(t *testing.T) {
	ops, err := parseBatchOps([]string{"put:a=1", "put:b=x=y", "del:c", "put:d="})
	require.NoError(t, err)
	assert.Equal(t, []down.BatchOp{
		{Type: down.BatchPut, Key: []byte("a"), Value: []byte("1")},
		{Type: down.BatchPut, Key: []byte("b"), Value: []byte("x=y")},
		{Type: down.BatchDel, Key: []byte("c")},
		{Type: down.BatchPut, Key: []byte("d"), Value: []byte{}},
	}, ops)

	for _, invalid := range []string{"a=1", "put:a", "merge:a=1"} {
		_, err := parseBatchOps([]string{invalid})
		assert.Error(t, err, invalid)
	}
}

func TestIteratorOptions(t *testing.T) {
	require.NoError(t, iterCmd.Flags().Set("gte", "b"))
	require.NoError(t, iterCmd.Flags().Set("reverse", "true"))
	t.Cleanup(func() {
		_ = iterCmd.Flags().Set("gte", "")
		_ = iterCmd.Flags().Set("reverse", "false")
	})

	opts := iteratorOptions(iterCmd)
	assert.Equal(t, []byte("b"), opts.Gte)
	assert.Nil(t, opts.Start)
	assert.Nil(t, opts.Lt)
	assert.True(t, opts.Reverse)
	assert.Nil(t, opts.Limit)

	require.NoError(t, iterCmd.Flags().Set("limit", "0"))
	t.Cleanup(func() { _ = iterCmd.Flags().Set("limit", "-1") })
	assert.Equal(t, 0, iteratorOptions(iterCmd).MaxRecords())
}
