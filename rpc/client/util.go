package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPC backend and its cursors with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke is a helper function used by all RPC clients to send requests.
// It serializes req, sends it to the shard and deserializes the response.
// Errors reported by the server are returned as errors carrying the query
// sentinel they were raised with. This method also checks if the type of
// the response is the expected type.
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := a.transport.Send(ctx, a.shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC QueryAdapter - failed to deserialize response: %w", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError {
		return nil, fmt.Errorf("RPC QueryAdapter - Error: %w", resp.Failure())
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC QueryAdapter - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response, the caller decides how to use its error
	return resp, resp.Failure()
}
