package relay

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List relays",
	Long: `List the relays of the server.

Examples:
  # List relays as table
  dittorelay relay list

  # List as JSON
  dittorelay relay list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	relays, err := cmdutil.GetClient().ListRelays(cmd.Context())
	if err != nil {
		return err
	}
	if len(relays) == 0 && printer.Format() == "table" {
		printer.Warning("No relays configured")
		return nil
	}
	return printer.Print(RelayList(relays))
}
