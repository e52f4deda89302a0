package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/rpc/common"
)

// NewQueryServerAdapter creates the adapter serving query.IBackend requests
// of one shard. Cursors opened by Run are kept in cursors.
func NewQueryServerAdapter(shardId uint64, cursors *cursorRegistry) IRPCServerAdapter {
	return &queryServerAdapterImpl{shardId: shardId, cursors: cursors}
}

type queryServerAdapterImpl struct {
	shardId uint64
	cursors *cursorRegistry
}

func (adapter *queryServerAdapterImpl) Handle(ctx context.Context, req *common.Message, backend query.IBackend) *common.Message {
	// Check for nil backend
	if backend == nil {
		return common.NewErrorResponse("handler: backend is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTOpenTable:
		err := backend.OpenTable(ctx, req.Table, req.OpenOptions())
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTDropTable:
		err := backend.DropTable(ctx, req.Table)
		return common.NewAckResponse(req.MsgType, err)
	case common.MsgTGet:
		row, err := backend.Get(ctx, req.Table, req.Key)
		return common.NewRowResponse(req.MsgType, row, err)
	case common.MsgTInsert:
		res, err := backend.Insert(ctx, req.Table, req.Row(), req.WriteOptions())
		return common.NewWriteResponse(req.MsgType, res, err)
	case common.MsgTDelete:
		res, err := backend.Delete(ctx, req.Table, req.Key, req.WriteOptions())
		return common.NewWriteResponse(req.MsgType, res, err)
	case common.MsgTApply:
		res, err := backend.Apply(ctx, req.Table, req.WriteOps(), req.WriteOptions())
		return common.NewWriteResponse(req.MsgType, res, err)
	case common.MsgTCount:
		n, err := backend.Count(ctx, req.Table, req.Key, req.Value)
		return common.NewCountResponse(n, err)
	case common.MsgTRun:
		cursor, err := backend.Run(ctx, req.Query())
		if err != nil {
			return common.NewRunResponse(0, err)
		}
		return common.NewRunResponse(adapter.cursors.add(adapter.shardId, cursor), nil)
	case common.MsgTCursorNext:
		row, err := adapter.cursors.next(ctx, adapter.shardId, req.CursorID)
		return common.NewRowResponse(req.MsgType, row, err)
	case common.MsgTCursorClose:
		err := adapter.cursors.close(adapter.shardId, req.CursorID)
		return common.NewAckResponse(req.MsgType, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC QueryAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
