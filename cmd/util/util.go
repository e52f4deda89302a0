package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kvdown/lib/db/engines/maple"
	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/ValentinKolb/kvdown/lib/down/ldown"
	"github.com/ValentinKolb/kvdown/lib/down/rdown"
	"github.com/ValentinKolb/kvdown/lib/query"
	"github.com/ValentinKolb/kvdown/rpc/client"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/ValentinKolb/kvdown/rpc/serializer"
	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/ValentinKolb/kvdown/rpc/transport/http"
	"github.com/ValentinKolb/kvdown/rpc/transport/tcp"
	"github.com/ValentinKolb/kvdown/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the CLI
	EnvPrefix = "kvdown"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the kvdown server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))
}

// InitConfig loads .env files and makes viper read KVDOWN_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	var endpoints []string
	for _, endpoint := range strings.Split(viper.GetString("transport-endpoints"), ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}

	return &common.ClientConfig{
		Endpoints:              endpoints,
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransport creates a client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPDefaultServerTransport(), nil
	case "unix":
		return unix.NewUnixDefaultServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return viper.GetUint64("shard")
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

// Driver bundles a down.IDown with the resources it was created from.
// Close closes both.
type Driver struct {
	down.IDown
	Location string
	Backend  query.IBackend // nil for the local driver
}

// Close closes the driver and the backend of a remote driver
func (d *Driver) Close() error {
	err := d.IDown.Close()
	if d.Backend != nil {
		if closeErr := d.Backend.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// NewDriver creates the driver selected by the "backend" flag for the store
// at the "location" flag. The driver is not opened.
func NewDriver() (*Driver, error) {
	location := viper.GetString("location")
	if location == "" {
		return nil, fmt.Errorf("no location given")
	}

	switch viper.GetString("backend") {
	case "local":
		return &Driver{IDown: ldown.New(location, maple.Factory), Location: location}, nil
	case "remote":
		s, err := GetSerializer()
		if err != nil {
			return nil, err
		}
		t, err := GetTransport()
		if err != nil {
			return nil, err
		}
		backend, err := client.NewRPCBackend(GetShardID(), *GetClientConfig(), t, s)
		if err != nil {
			return nil, err
		}
		return &Driver{IDown: rdown.New(location, backend), Location: location, Backend: backend}, nil
	default:
		return nil, fmt.Errorf("invalid backend %s (expected local or remote)", viper.GetString("backend"))
	}
}
