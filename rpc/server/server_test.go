package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopTransport never listens, requests are passed to the handler directly
type nopTransport struct {
	handler transport.ServerHandleFunc
	closed  int
}

func (t *nopTransport) RegisterHandler(handler transport.ServerHandleFunc) { t.handler = handler }
func (t *nopTransport) Listen(common.ServerConfig) error                   { return nil }
func (t *nopTransport) Close() error                                       { t.closed++; return nil }

func newTestServer(t *testing.T) (*rpcServer, *nopTransport) {
	tr := &nopTransport{}
	s := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: 1, Type: common.ShardTypeSQLite},
			{ShardID: 2, Type: common.ShardTypePebble},
		},
		DataDir:       t.TempDir(),
		TimeoutSecond: 5,
	}, tr, serializer.NewJSONSerializer())
	require.NoError(t, s.init())
	t.Cleanup(func() { _ = s.Close() })
	return s, tr
}

// call sends req through the registered handler like a transport would
func call(t *testing.T, tr *nopTransport, shardId uint64, req *common.Message) *common.Message {
	s := serializer.NewJSONSerializer()
	data, err := s.Serialize(*req)
	require.NoError(t, err)

	var resp common.Message
	require.NoError(t, s.Deserialize(tr.handler(shardId, data), &resp))
	return &resp
}

func TestHandle(t *testing.T) {
	_, tr := newTestServer(t)

	for _, shardId := range []uint64{1, 2} {
		resp := call(t, tr, shardId, common.NewOpenTableRequest("t", query.OpenOptions{CreateIfMissing: true}))
		require.NoError(t, resp.Failure())
		assert.Equal(t, common.MsgTOpenTable, resp.MsgType)

		ops := []query.WriteOp{
			{Type: query.WriteOpInsert, Key: []byte("a"), Value: "1"},
			{Type: query.WriteOpInsert, Key: []byte("b"), Value: []byte{0x00}},
			{Type: query.WriteOpInsert, Key: []byte("c"), Value: "3"},
		}
		resp = call(t, tr, shardId, common.NewApplyRequest("t", ops, query.WriteOptions{}))
		require.NoError(t, resp.Failure())
		assert.Equal(t, 3, resp.WriteResult().Inserted)

		resp = call(t, tr, shardId, common.NewGetRequest("t", []byte("b")))
		require.NoError(t, resp.Failure())
		assert.Equal(t, query.Row{Key: []byte("b"), Value: []byte{0x00}}, resp.Row())

		resp = call(t, tr, shardId, common.NewGetRequest("t", []byte("x")))
		assert.ErrorIs(t, resp.Failure(), query.ErrNotFound)

		resp = call(t, tr, shardId, common.NewCountRequest("t", []byte("a"), []byte("b")))
		require.NoError(t, resp.Failure())
		assert.Equal(t, uint64(2), resp.Count)

		resp = call(t, tr, shardId, common.NewDeleteRequest("t", []byte("x"), query.WriteOptions{}))
		require.NoError(t, resp.Failure())
		assert.Equal(t, query.ErrCNotFound, resp.WriteResult().FirstErrorCode)
	}
}

func TestHandleCursor(t *testing.T) {
	s, tr := newTestServer(t)

	call(t, tr, 1, common.NewOpenTableRequest("t", query.OpenOptions{CreateIfMissing: true}))
	for _, k := range []string{"a", "b", "c"} {
		resp := call(t, tr, 1, common.NewInsertRequest("t", query.Row{Key: []byte(k), Value: k}, query.WriteOptions{}))
		require.NoError(t, resp.Failure())
	}

	q := query.Table("t").Filter(query.Field(query.PK).Gt([]byte("a"))).OrderBy(query.Desc)
	resp := call(t, tr, 1, common.NewRunRequest(q))
	require.NoError(t, resp.Failure())
	id := resp.CursorID
	require.NotZero(t, id)
	assert.Equal(t, 1, s.cursors.len())

	var keys []string
	for {
		resp = call(t, tr, 1, common.NewCursorNextRequest(id))
		if errors.Is(resp.Failure(), query.ErrCursorExhausted) {
			break
		}
		require.NoError(t, resp.Failure())
		keys = append(keys, string(resp.Key))
	}
	assert.Equal(t, []string{"c", "b"}, keys)

	// a drained cursor is released by the server
	assert.Zero(t, s.cursors.len())
	resp = call(t, tr, 1, common.NewCursorCloseRequest(id))
	assert.NoError(t, resp.Failure())
}

func TestHandleCursorOfOtherShard(t *testing.T) {
	_, tr := newTestServer(t)

	call(t, tr, 1, common.NewOpenTableRequest("t", query.OpenOptions{CreateIfMissing: true}))
	resp := call(t, tr, 1, common.NewRunRequest(query.Table("t")))
	require.NoError(t, resp.Failure())

	resp = call(t, tr, 2, common.NewCursorNextRequest(resp.CursorID))
	assert.ErrorContains(t, resp.Failure(), "cursor not found")
}

func TestHandleErrors(t *testing.T) {
	_, tr := newTestServer(t)

	resp := call(t, tr, 99, common.NewGetRequest("t", []byte("k")))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Contains(t, resp.Err, "shard 99 not found")

	resp = call(t, tr, 1, &common.Message{MsgType: common.MsgTSuccess})
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Contains(t, resp.Err, "Unsupported message type")

	resp = call(t, tr, 1, common.NewGetRequest("missing", []byte("k")))
	assert.Equal(t, common.MsgTGet, resp.MsgType)
	assert.Error(t, resp.Failure())

	// garbage is answered with an error response
	var msg common.Message
	require.NoError(t, serializer.NewJSONSerializer().Deserialize(tr.handler(1, []byte("{")), &msg))
	assert.Equal(t, common.MsgTError, msg.MsgType)
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name   string
		shards []common.ServerShard
	}{
		{"no shards", nil},
		{"duplicate shard", []common.ServerShard{{ShardID: 1, Type: common.ShardTypeSQLite}, {ShardID: 1, Type: common.ShardTypePebble}}},
		{"invalid type", []common.ServerShard{{ShardID: 1, Type: "btree"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewRPCServer(common.ServerConfig{Shards: tc.shards, DataDir: t.TempDir()}, &nopTransport{}, serializer.NewJSONSerializer())
			assert.Error(t, s.Serve())
			assert.Zero(t, s.shards.Size())
		})
	}
}

func TestClose(t *testing.T) {
	s, tr := newTestServer(t)

	call(t, tr, 2, common.NewOpenTableRequest("t", query.OpenOptions{CreateIfMissing: true}))
	resp := call(t, tr, 2, common.NewRunRequest(query.Table("t")))
	require.NoError(t, resp.Failure())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, tr.closed)
	assert.Zero(t, s.cursors.len())
	assert.Zero(t, s.shards.Size())
}

// --------------------------------------------------------------------------
// Cursor registry
// --------------------------------------------------------------------------

type fakeCursor struct {
	rows   int
	closed int
}

func (c *fakeCursor) Next(context.Context) (query.Row, error) {
	if c.rows == 0 {
		return query.Row{}, query.ErrCursorExhausted
	}
	c.rows--
	return query.Row{Key: []byte{byte(c.rows)}}, nil
}

func (c *fakeCursor) Close() error {
	c.closed++
	return nil
}

func TestCursorRegistryReap(t *testing.T) {
	r := newCursorRegistry(time.Minute)
	ctx := context.Background()

	idle := &fakeCursor{rows: 5}
	busy := &fakeCursor{rows: 5}
	idleID := r.add(1, idle)
	busyID := r.add(1, busy)
	assert.NotEqual(t, idleID, busyID)

	// nothing is idle yet
	assert.Zero(t, r.reap(time.Now()))

	// using a cursor keeps it alive
	later := time.Now().Add(2 * time.Minute)
	busyEntry, _ := r.cursors.Load(busyID)
	busyEntry.lastUsed.Store(later.UnixNano())

	assert.Equal(t, 1, r.reap(later))
	assert.Equal(t, 1, idle.closed)
	assert.Zero(t, busy.closed)

	_, err := r.next(ctx, 1, idleID)
	assert.ErrorIs(t, err, errCursorNotFound)
	_, err = r.next(ctx, 1, busyID)
	assert.NoError(t, err)

	r.stop()
	assert.Equal(t, 1, busy.closed)
	assert.Zero(t, r.len())
}

func TestCursorRegistryDisabledReaper(t *testing.T) {
	r := newCursorRegistry(0)
	r.add(1, &fakeCursor{})
	assert.Zero(t, r.reap(time.Now().Add(time.Hour)))
	r.start()
	r.stop()
}

func TestCursorRegistryBackgroundReaper(t *testing.T) {
	r := newCursorRegistry(50 * time.Millisecond)
	cursor := &fakeCursor{rows: 1}
	r.add(1, cursor)

	r.start()
	defer r.stop()

	require.Eventually(t, func() bool { return r.len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestCursorRegistryShards(t *testing.T) {
	r := newCursorRegistry(0)
	ctx := context.Background()
	cursor := &fakeCursor{rows: 1}
	id := r.add(1, cursor)

	_, err := r.next(ctx, 2, id)
	assert.ErrorIs(t, err, errCursorNotFound)
	assert.NoError(t, r.close(2, id))
	assert.Zero(t, cursor.closed)

	_, err = r.next(ctx, 1, id)
	require.NoError(t, err)
	_, err = r.next(ctx, 1, id)
	assert.ErrorIs(t, err, query.ErrCursorExhausted)
	assert.Equal(t, 1, cursor.closed)
	assert.NoError(t, r.close(1, id))
	assert.Equal(t, 1, cursor.closed)
}
