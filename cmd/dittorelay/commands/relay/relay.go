// Package relay implements the relay client subcommands.
package relay

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/internal/cli/output"
	"github.com/marmos91/dittorelay/pkg/apiclient"
)

// Cmd is the relay subcommand.
var Cmd = &cobra.Command{
	Use:   "relay",
	Short: "Inspect and control relays on a running server",
	Long: `Inspect and control the relays of a running dittorelay server through
its REST API. Use --server or DITTORELAY_SERVER to select the server.

Subcommands:
  list         List relays
  show         Show one relay
  status       Print the status line of a relay
  suspend      Stop state transitions
  resume       Restart state transitions
  transitions  Show journaled transitions
  read         Read bytes through a relay
  write        Write bytes through a relay
  flush        Flush the device behind a relay
  discard      Discard a range on the device behind a relay`,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(suspendCmd)
	Cmd.AddCommand(resumeCmd)
	Cmd.AddCommand(transitionsCmd)
	Cmd.AddCommand(readCmd)
	Cmd.AddCommand(writeCmd)
	Cmd.AddCommand(flushCmd)
	Cmd.AddCommand(discardCmd)
}

// RelayList renders relays as a table.
type RelayList []apiclient.Relay

// Headers implements output.TableRenderer.
func (l RelayList) Headers() []string {
	return []string{"NAME", "STATE", "ENDPOINT", "BACKEND", "IDLE", "WAKE", "ATTACHED", "WAITERS", "PENDING", "TRANSITIONS"}
}

// Rows implements output.TableRenderer.
func (l RelayList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		pending := r.Pending
		if pending == "" {
			pending = "-"
		}
		transitions := "enabled"
		if !r.TransitionsEnabled {
			transitions = "suspended"
		}
		rows = append(rows, []string{
			r.Name,
			r.State,
			r.Endpoint,
			r.Backend,
			output.Millis(r.IdleTimeoutMs),
			output.Millis(r.WakeTimeoutMs),
			output.Bool(r.Attached),
			fmt.Sprint(r.Waiters),
			pending,
			transitions,
		})
	}
	return rows
}
