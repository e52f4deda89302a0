package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kvdown/cmd/kv"
	"github.com/ValentinKolb/kvdown/cmd/serve"
	"github.com/ValentinKolb/kvdown/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvdown",
		Short: "ordered key-value store drivers",
		Long: fmt.Sprintf(`kvdown (v%s)

Ordered key-value store drivers written in Go. Stores live either in a
local file or in a table of a kvdown server shard backed by sqlite or pebble.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvdown",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvdown v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
