package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/lib/query/engines/pebble"
	"github.com/ValentinKolb/kvdown/lib/query/engines/sqlite"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the backend it encapsulates and the adapter
// that handles requests for the backend
type serverShard struct {
	Backend query.IBackend
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create the RPC server
	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		cursors:    newCursorRegistry(config.CursorIdleTimeout()),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	cursors    *cursorRegistry

	closeOnce sync.Once
}

// handle is the transport handler. It decodes the request, lets the adapter
// of the shard handle it and encodes the response.
func (s *rpcServer) handle(shardId uint64, req []byte) []byte {
	start := time.Now()

	var msg common.Message
	var respMsg *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	// Case shard does not exist -> error
	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		ctx := context.Background()
		if timeout := s.config.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		// Let the adapter handle the request
		respMsg = shard.Adapter.Handle(ctx, &msg, shard.Backend)
	}

	failed := respMsg.MsgType == common.MsgTError || (respMsg.Err != "" && !isExpected(respMsg))
	observeRequest(shardId, msg.MsgType, failed, start)

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// isExpected reports errors that are part of normal operation (missing keys,
// drained cursors) and are not counted as failed requests
func isExpected(msg *common.Message) bool {
	err := msg.Failure()
	return errors.Is(err, query.ErrNotFound) || errors.Is(err, query.ErrCursorExhausted)
}

// openBackend opens the engine of a shard below the data dir
func (s *rpcServer) openBackend(shard common.ServerShard) (query.IBackend, error) {
	dir := filepath.Join(s.config.DataDir, fmt.Sprintf("shard-%d", shard.ShardID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir of shard %d: %w", shard.ShardID, err)
	}

	switch shard.Type {
	case common.ShardTypeSQLite:
		return sqlite.NewSQLiteBackend(filepath.Join(dir, "data.db"))
	case common.ShardTypePebble:
		return pebble.NewPebbleBackend(dir)
	default:
		return nil, fmt.Errorf("invalid shard type: %s", shard.Type)
	}
}

func (s *rpcServer) init() error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	// CREATE SHARDS

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("shard %d is configured twice", shardConfig.ShardID)
		}

		backend, err := s.openBackend(shardConfig)
		if err != nil {
			return err
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Backend: backend,
			Adapter: NewQueryServerAdapter(shardConfig.ShardID, s.cursors),
		})
		Logger.Infof("created %s backend for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	Logger.Infof("kvdown setup completed successfully")

	// Start closing idle cursors
	s.cursors.start()

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It blocks until Close is called.
func (s *rpcServer) Serve() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	if err := s.init(); err != nil {
		s.closeShards()
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, closes all open cursors and all backends
func (s *rpcServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
		s.cursors.stop()
		if closeErr := s.closeShards(); err == nil {
			err = closeErr
		}
		Logger.Infof("RPC Server stopped")
	})
	return err
}

func (s *rpcServer) closeShards() error {
	var errs []error
	s.shards.Range(func(shardId uint64, shard serverShard) bool {
		if err := shard.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", shardId, err))
		}
		s.shards.Delete(shardId)
		return true
	})
	return errors.Join(errs...)
}
