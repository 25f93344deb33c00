package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/internal/cli/output"
	"github.com/marmos91/dittorelay/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittorelay configuration file.

Checks for syntax errors, missing required fields, invalid values,
duplicate relay names and malformed relay tables. Devices are not
attached.

Examples:
  # Validate default config
  dittorelay config validate

  # Validate specific config file
  dittorelay config validate --config /etc/dittorelay/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if len(cfg.Relays) == 0 {
		warnings = append(warnings, "no relays configured - the server will never become ready")
	}
	if !cfg.Power.LogEnabled() && cfg.Power.Command.Path == "" && cfg.Power.Webhook.URL == "" {
		warnings = append(warnings, "no power target configured - power intents are discarded")
	}
	if !cfg.API.IsEnabled() {
		warnings = append(warnings, "API disabled - relays cannot be inspected or used over HTTP")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nRelays:")
	table := output.NewTableData("NAME", "ENDPOINT", "DEVICE", "IDLE", "WAKE")
	for i := range cfg.Relays {
		rcfg, err := cfg.Relays[i].RelayConfig()
		if err != nil {
			return err
		}
		table.AddRow(rcfg.Name, rcfg.Endpoint, cfg.Relays[i].Device.Type,
			output.Millis(rcfg.IdleTimeout.Milliseconds()), output.Millis(rcfg.WakeTimeout.Milliseconds()))
	}
	return output.PrintTable(out, table)
}
