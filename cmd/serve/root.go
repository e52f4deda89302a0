package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/kvdown/cmd/util"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the kvdown server",
		Long:    `Start the kvdown server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KVDOWN_<flag> (e.g. KVDOWN_DATA_DIR=/var/lib/kvdown)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=sqlite,200=pebble", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: sqlite, pebble"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory holding the databases of all shards (one sub directory per shard)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of a single request in seconds (0 disables the timeout)"))

	key = "cursor-idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, 60, cmdUtil.WrapString("Cursors that were not used for this many seconds are closed by the server (0 keeps them open until the client closes them)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/kvdown.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Maximum number of requests handled concurrently per connection (tcp and unix only)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (tcp only, 0 keeps the OS default)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time in seconds (tcp only, 0 keeps the OS default)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB, tcp only)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB, tcp only)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// parseShards parses a list of ID=TYPE pairs
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	shards := []common.ServerShard{}
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		if strings.TrimSpace(shardConfig) == "" {
			continue
		}
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		shardType, err := common.ParseShardType(parts[1])
		if err != nil {
			return nil, err
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    shardType,
		})
	}
	return shards, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.CursorIdleSecond = viper.GetInt64("cursor-idle-timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.TCPKeepAliveSec = viper.GetInt("tcp-keepalive")
	serveCmdConfig.TCPLingerSec = viper.GetInt("tcp-linger")
	serveCmdConfig.WriteBufferSize = viper.GetInt("write-buffer") * 1024
	serveCmdConfig.ReadBufferSize = viper.GetInt("read-buffer") * 1024
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the kvdown server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		server.Logger.Infof("received %s, shutting down", sig)
		_ = serv.Close()
	}()

	if err := serv.Serve(); err != nil {
		return err
	}
	return serv.Close()
}
