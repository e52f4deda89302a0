package serve

import (
	"testing"

	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("100=sqlite, 200 = Pebble,")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeSQLite},
		{ShardID: 200, Type: common.ShardTypePebble},
	}, shards)

	for _, invalid := range []string{"100", "x=sqlite", "100=btree", "1=sqlite=2"} {
		_, err := parseShards(invalid)
		assert.Error(t, err, invalid)
	}
}
