package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/transport"
)

// NewRPCBackend creates a new RPC backend
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns a query.IBackend whose tables live on the server shard.
// Close closes the transport.
func NewRPCBackend(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (query.IBackend, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC backend
	b := rpcBackend{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC backend
	return &b, nil
}

type rpcBackend struct {
	rpcClientAdapter
	closed    atomic.Bool
	closeOnce sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the query package in interface.go)
// --------------------------------------------------------------------------

func (b *rpcBackend) OpenTable(ctx context.Context, table string, opts query.OpenOptions) (err error) {
	if b.closed.Load() {
		return query.ErrClosed
	}
	_, err = b.invoke(ctx, common.NewOpenTableRequest(table, opts))
	return err
}

func (b *rpcBackend) DropTable(ctx context.Context, table string) (err error) {
	if b.closed.Load() {
		return query.ErrClosed
	}
	_, err = b.invoke(ctx, common.NewDropTableRequest(table))
	return err
}

func (b *rpcBackend) Get(ctx context.Context, table string, key []byte) (row query.Row, err error) {
	if b.closed.Load() {
		return query.Row{}, query.ErrClosed
	}
	resp, err := b.invoke(ctx, common.NewGetRequest(table, key))
	if err != nil {
		return query.Row{}, err
	}
	return resp.Row(), nil
}

func (b *rpcBackend) Insert(ctx context.Context, table string, row query.Row, opts query.WriteOptions) (res query.WriteResult, err error) {
	return b.write(ctx, common.NewInsertRequest(table, row, opts))
}

func (b *rpcBackend) Delete(ctx context.Context, table string, key []byte, opts query.WriteOptions) (res query.WriteResult, err error) {
	return b.write(ctx, common.NewDeleteRequest(table, key, opts))
}

func (b *rpcBackend) Apply(ctx context.Context, table string, ops []query.WriteOp, opts query.WriteOptions) (res query.WriteResult, err error) {
	return b.write(ctx, common.NewApplyRequest(table, ops, opts))
}

func (b *rpcBackend) Run(ctx context.Context, q query.Query) (cursor query.ICursor, err error) {
	if b.closed.Load() {
		return nil, query.ErrClosed
	}

	// Only the operator and value of a filter are sent, the field is checked here
	if err := q.Validate(); err != nil {
		return nil, err
	}

	resp, err := b.invoke(ctx, common.NewRunRequest(q))
	if err != nil {
		return nil, err
	}
	return &rpcCursor{adapter: &b.rpcClientAdapter, id: resp.CursorID}, nil
}

func (b *rpcBackend) Count(ctx context.Context, table string, low, high []byte) (n uint64, err error) {
	if b.closed.Load() {
		return 0, query.ErrClosed
	}
	resp, err := b.invoke(ctx, common.NewCountRequest(table, low, high))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (b *rpcBackend) Close() (err error) {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.transport.Close()
	})
	return err
}

// write sends a write request. The result is returned even if the server
// reported an error for the request.
func (b *rpcBackend) write(ctx context.Context, req *common.Message) (query.WriteResult, error) {
	if b.closed.Load() {
		return query.WriteResult{}, query.ErrClosed
	}
	resp, err := b.invoke(ctx, req)
	if resp == nil {
		return query.WriteResult{}, err
	}
	return resp.WriteResult(), err
}

// --------------------------------------------------------------------------
// Remote Cursor
// --------------------------------------------------------------------------

// rpcCursor fetches the rows of a server side cursor one request at a time
type rpcCursor struct {
	adapter *rpcClientAdapter
	id      uint64

	mu   sync.Mutex
	done bool // drained, failed or closed; the server released the cursor
}

func (c *rpcCursor) Next(ctx context.Context) (query.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return query.Row{}, query.ErrCursorExhausted
	}

	resp, err := c.adapter.invoke(ctx, common.NewCursorNextRequest(c.id))
	if err != nil {
		// the server drops cursors it reported an error for
		if resp != nil {
			c.done = true
		}
		if errors.Is(err, query.ErrCursorExhausted) {
			return query.Row{}, query.ErrCursorExhausted
		}
		return query.Row{}, err
	}
	return resp.Row(), nil
}

func (c *rpcCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil
	}
	c.done = true

	// the cursor must be released even if the caller's context is gone
	ctx := context.Background()
	if timeout := c.adapter.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err := c.adapter.invoke(ctx, common.NewCursorCloseRequest(c.id))
	return err
}
