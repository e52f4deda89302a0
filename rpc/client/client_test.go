package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/ValentinKolb/kvdown/lib/down/rdown"
	downtesting "github.com/ValentinKolb/kvdown/lib/down/testing"
	"github.com/ValentinKolb/kvdown/lib/query"
	querytesting "github.com/ValentinKolb/kvdown/lib/query/testing"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/server"
	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/ValentinKolb/kvdown/rpc/transport/http"
	"github.com/ValentinKolb/kvdown/rpc/transport/tcp"
	"github.com/ValentinKolb/kvdown/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shardId = 1

type testServer struct {
	network    string // network used to dial the endpoint
	endpoint   string
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
}

// freeTCPAddr returns a local address nothing listens on
func freeTCPAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// unixServer serves a shard over a unix socket. The socket lives in a short
// temp dir, t.TempDir paths can exceed the socket path limit.
func unixServer(t *testing.T, s serializer.IRPCSerializer) testServer {
	dir, err := os.MkdirTemp("", "kvdown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return testServer{"unix", filepath.Join(dir, "rpc.sock"), unix.NewUnixDefaultServerTransport(), s}
}

// startServer starts a server with a single shard and returns the config to reach it
func startServer(t *testing.T, ts testServer, shardType common.ServerShardType, cursorIdleSecond int64) common.ClientConfig {
	s := server.NewRPCServer(common.ServerConfig{
		Shards:           []common.ServerShard{{ShardID: shardId, Type: shardType}},
		DataDir:          t.TempDir(),
		Endpoint:         ts.endpoint,
		TimeoutSecond:    5,
		CursorIdleSecond: cursorIdleSecond,
	}, ts.transport, ts.serializer)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	t.Cleanup(func() {
		_ = s.Close()
		<-errCh
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial(ts.network, ts.endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return common.ClientConfig{Endpoints: []string{ts.endpoint}, TimeoutSecond: 5, RetryCount: 1}
}

func newBackend(t *testing.T, config common.ClientConfig, tr transport.IRPCClientTransport, s serializer.IRPCSerializer) query.IBackend {
	backend, err := NewRPCBackend(shardId, config, tr, s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRPCBackendSQLite(t *testing.T) {
	querytesting.RunBackendTests(t, "RPC/SQLite", func(t *testing.T) query.IBackend {
		s := serializer.NewBinarySerializer()
		config := startServer(t, unixServer(t, s), common.ShardTypeSQLite, 0)
		return newBackend(t, config, unix.NewUnixClientTransport(), s)
	})
}

func TestRPCBackendPebble(t *testing.T) {
	querytesting.RunBackendTests(t, "RPC/Pebble", func(t *testing.T) query.IBackend {
		s := serializer.NewJSONSerializer()
		config := startServer(t, unixServer(t, s), common.ShardTypePebble, 0)
		return newBackend(t, config, unix.NewUnixClientTransport(), s)
	})
}

func TestRemoteDown(t *testing.T) {
	downtesting.RunDownTests(t, "RemoteDOWN/RPC", func(t *testing.T) down.IDown {
		s := serializer.NewBinarySerializer()
		config := startServer(t, unixServer(t, s), common.ShardTypeSQLite, 60)
		return rdown.New("test-db", newBackend(t, config, unix.NewUnixClientTransport(), s))
	})
}

func TestTransports(t *testing.T) {
	tests := []struct {
		name   string
		server func(t *testing.T, s serializer.IRPCSerializer) testServer
		client func() transport.IRPCClientTransport
	}{
		{
			name: "tcp",
			server: func(t *testing.T, s serializer.IRPCSerializer) testServer {
				return testServer{"tcp", freeTCPAddr(t), tcp.NewTCPDefaultServerTransport(), s}
			},
			client: tcp.NewTCPClientTransport,
		},
		{
			name: "http",
			server: func(t *testing.T, s serializer.IRPCSerializer) testServer {
				return testServer{"tcp", freeTCPAddr(t), http.NewHttpServerTransport(), s}
			},
			client: http.NewHttpClientTransport,
		},
		{
			name:   "unix",
			server: unixServer,
			client: unix.NewUnixClientTransport,
		},
	}

	serializers := map[string]func() serializer.IRPCSerializer{
		"binary": serializer.NewBinarySerializer,
		"json":   serializer.NewJSONSerializer,
		"gob":    serializer.NewGOBSerializer,
	}

	for _, tc := range tests {
		for sName, newSerializer := range serializers {
			t.Run(tc.name+"/"+sName, func(t *testing.T) {
				ctx := context.Background()
				s := newSerializer()
				config := startServer(t, tc.server(t, s), common.ShardTypePebble, 0)
				backend := newBackend(t, config, tc.client(), s)

				require.NoError(t, backend.OpenTable(ctx, "t", query.OpenOptions{CreateIfMissing: true}))
				for _, k := range []string{"a", "b", "c"} {
					res, err := backend.Insert(ctx, "t", query.Row{Key: []byte(k), Value: []byte(k + k)}, query.WriteOptions{})
					require.NoError(t, err)
					assert.Equal(t, 1, res.Inserted)
				}

				row, err := backend.Get(ctx, "t", []byte("b"))
				require.NoError(t, err)
				assert.Equal(t, []byte("bb"), row.Value)

				cursor, err := backend.Run(ctx, query.Table("t").OrderBy(query.Desc).Limit(2))
				require.NoError(t, err)
				defer cursor.Close() //nolint:errcheck

				var keys []string
				for {
					row, err := cursor.Next(ctx)
					if errors.Is(err, query.ErrCursorExhausted) {
						break
					}
					require.NoError(t, err)
					keys = append(keys, string(row.Key))
				}
				assert.Equal(t, []string{"c", "b"}, keys)
			})
		}
	}
}

func TestShardNotFound(t *testing.T) {
	s := serializer.NewBinarySerializer()
	config := startServer(t, unixServer(t, s), common.ShardTypeSQLite, 0)

	backend, err := NewRPCBackend(99, config, unix.NewUnixClientTransport(), s)
	require.NoError(t, err)
	defer backend.Close() //nolint:errcheck

	err = backend.OpenTable(context.Background(), "t", query.OpenOptions{CreateIfMissing: true})
	assert.ErrorContains(t, err, "shard 99 not found")
}

func TestConnectFails(t *testing.T) {
	_, err := NewRPCBackend(shardId, common.ClientConfig{}, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	assert.Error(t, err)

	config := common.ClientConfig{Endpoints: []string{filepath.Join(t.TempDir(), "missing.sock")}}
	_, err = NewRPCBackend(shardId, config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	assert.Error(t, err)
}

func TestIdleCursorIsReleased(t *testing.T) {
	ctx := context.Background()
	s := serializer.NewBinarySerializer()
	config := startServer(t, unixServer(t, s), common.ShardTypeSQLite, 1)
	backend := newBackend(t, config, unix.NewUnixClientTransport(), s)

	require.NoError(t, backend.OpenTable(ctx, "t", query.OpenOptions{CreateIfMissing: true}))
	_, err := backend.Insert(ctx, "t", query.Row{Key: []byte("k"), Value: "v"}, query.WriteOptions{})
	require.NoError(t, err)

	cursor, err := backend.Run(ctx, query.Table("t"))
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	_, err = cursor.Next(ctx)
	assert.ErrorContains(t, err, "cursor not found")

	// the server already forgot the cursor
	assert.NoError(t, cursor.Close())
}

func TestCanceledContext(t *testing.T) {
	s := serializer.NewBinarySerializer()
	config := startServer(t, unixServer(t, s), common.ShardTypeSQLite, 0)
	backend := newBackend(t, config, unix.NewUnixClientTransport(), s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.OpenTable(ctx, "t", query.OpenOptions{CreateIfMissing: true})
	assert.ErrorIs(t, err, context.Canceled)
}
