// Package commands implements the dittorelay CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	configcmd "github.com/marmos91/dittorelay/cmd/dittorelay/commands/config"
	relaycmd "github.com/marmos91/dittorelay/cmd/dittorelay/commands/relay"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittorelay",
	Short: "dittorelay - power-gating relay for block devices",
	Long: `dittorelay sits in front of block devices and keeps them attached only
while they are used. After a quiet period a relay releases its device and
emits a power-down intent; the next request emits a power-up intent, waits
for the device to come back and then completes.

Server commands (start, config) read the configuration file. Client
commands (status, relay) talk to a running server over its REST API.

Use "dittorelay [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittorelay/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "API server URL (default: $DITTORELAY_SERVER or "+cmdutil.DefaultServerURL+")")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(relaycmd.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
