package kv

import (
	"github.com/ValentinKolb/kvdown/cmd/util"
	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	driver *util.Driver

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		Long:               "Perform operations on an ordered key-value store. With --backend local the store is a file at --location, with --backend remote it is a table on a kvdown server shard.",
		PersistentPreRunE:  setupDriver,
		PersistentPostRunE: closeDriver,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to (remote backend only)"))
	KeyValueCommands.PersistentFlags().String("backend", "local", util.WrapString("Driver to use (local, remote)"))
	KeyValueCommands.PersistentFlags().String("location", "kvdown.db", util.WrapString("Location of the store. A file path for the local backend, the name of the table for the remote backend"))
	KeyValueCommands.PersistentFlags().String("log-level", "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(batchCmd)
	KeyValueCommands.AddCommand(iterCmd)
	KeyValueCommands.AddCommand(sizeCmd)
	KeyValueCommands.AddCommand(destroyCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupDriver creates the driver, commands open it themselves
func setupDriver(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	var err error
	driver, err = util.NewDriver()
	return err
}

func closeDriver(*cobra.Command, []string) error {
	if driver == nil {
		return nil
	}
	return driver.Close()
}
