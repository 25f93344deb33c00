package relay

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/internal/cli/output"
)

var statusType string

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Print the status line of a relay",
	Long: `Print the status line of a relay.

The table form is the construction line "<endpoint> <idle_ms> <wake_ms>",
which can be pasted back into a relay's table field. The info form is
empty. Both fail while the relay holds no device.

Examples:
  dittorelay relay status disk0
  dittorelay relay status disk0 --type info`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusType, "type", "table", "Status type (table|info)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	st, err := cmdutil.GetClient().RelayStatus(cmd.Context(), args[0], statusType)
	if err != nil {
		return err
	}

	if printer.Format() != output.FormatTable {
		return printer.Print(st)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), st.Status)
	return err
}
