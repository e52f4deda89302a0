package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShardType selects the query engine a shard is backed by
type ServerShardType string

const (
	ShardTypeSQLite ServerShardType = "sqlite"
	ShardTypePebble ServerShardType = "pebble"
)

// ParseShardType returns the shard type for name
func ParseShardType(name string) (ServerShardType, error) {
	switch t := ServerShardType(strings.ToLower(strings.TrimSpace(name))); t {
	case ShardTypeSQLite, ShardTypePebble:
		return t, nil
	default:
		return "", fmt.Errorf("invalid shard type %q, must be one of sqlite, pebble", name)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type is the engine the shard is stored in
	Type ServerShardType
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	// Shards hosted by the server
	Shards []ServerShard

	// DataDir holds one database per shard
	DataDir string

	// Timeout of a single request
	TimeoutSecond int64

	// Cursors not used for this long are closed by the server
	CursorIdleSecond int64

	// Endpoint the transport listens on (host:port or socket path)
	Endpoint string

	// WorkersPerConn limits the concurrent requests of one connection (tcp/unix)
	WorkersPerConn int

	// Socket options (tcp)
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int

	// Logging configuration
	LogLevel string
}

// Timeout returns the request timeout, zero means no timeout
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// CursorIdleTimeout returns after how long an unused cursor is closed, zero disables reaping
func (c *ServerConfig) CursorIdleTimeout() time.Duration {
	return time.Duration(c.CursorIdleSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Cursor Idle Timeout", fmt.Sprintf("%d sec", c.CursorIdleSecond))
	addField("Workers Per Conn", strconv.Itoa(c.WorkersPerConn))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// Timeout returns the request timeout, zero means no timeout
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
