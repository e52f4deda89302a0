package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// Server metrics, exposed by the http transport at GET /metrics
var (
	cursorsOpened = metrics.NewCounter(`kvdown_rpc_cursors_opened_total`)
	cursorsClosed = metrics.NewCounter(`kvdown_rpc_cursors_closed_total`)
	cursorsReaped = metrics.NewCounter(`kvdown_rpc_cursors_reaped_total`)
)

// observeRequest counts a handled request and records its duration
func observeRequest(shardId uint64, msgType common.MessageType, failed bool, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`kvdown_rpc_requests_total{shard="%d",type="%s"}`, shardId, msgType)).Inc()
	if failed {
		metrics.GetOrCreateCounter(fmt.Sprintf(`kvdown_rpc_request_errors_total{shard="%d",type="%s"}`, shardId, msgType)).Inc()
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`kvdown_rpc_request_duration_seconds{type="%s"}`, msgType)).UpdateDuration(start)
}
