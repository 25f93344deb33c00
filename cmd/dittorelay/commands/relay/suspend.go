package relay

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/internal/cli/output"
)

var suspendCmd = &cobra.Command{
	Use:   "suspend <name>",
	Short: "Stop state transitions of a relay",
	Long: `Stop the state transitions of a relay. Pending sleep and wake timers
are cancelled. Requests keep using the held device, or fail with
"no device attached" if the relay is IDLE.

Examples:
  dittorelay relay suspend disk0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <name>",
	Short: "Restart state transitions of a relay",
	Long: `Restart the state transitions of a suspended relay. The idle timer is
re-armed, or the wake timer if requests are waiting.

Examples:
  dittorelay relay resume disk0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], true)
	},
}

func toggle(cmd *cobra.Command, name string, enable bool) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	client := cmdutil.GetClient()
	call, verb := client.SuspendRelay, "suspended"
	if enable {
		call, verb = client.ResumeRelay, "resumed"
	}

	r, err := call(cmd.Context(), name)
	if err != nil {
		return err
	}

	if printer.Format() != output.FormatTable {
		return printer.Print(r)
	}
	printer.Success(fmt.Sprintf("Relay %s %s (state %s)", r.Name, verb, r.State))
	return nil
}
