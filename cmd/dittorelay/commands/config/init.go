package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a sample dittorelay configuration file with one in-memory relay.

By default, the file is created at $XDG_CONFIG_HOME/dittorelay/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittorelay config init

  # Initialize with custom path
  dittorelay config init --config /etc/dittorelay/config.yaml

  # Overwrite an existing file
  dittorelay config init --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Replace the sample memory relay with your devices")
	_, _ = fmt.Fprintln(out, "  2. Point power.command or power.webhook at your power switch")
	_, _ = fmt.Fprintf(out, "  3. Start the server with: dittorelay start --config %s\n", configPath)
	return nil
}
