package relay

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/internal/cli/output"
	"github.com/marmos91/dittorelay/pkg/apiclient"
)

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one relay",
	Long: `Show the full state of one relay: timers, held device, waiters,
requests in flight and transition counters.

Examples:
  dittorelay relay show disk0
  dittorelay relay show disk0 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	r, err := cmdutil.GetClient().GetRelay(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if printer.Format() != output.FormatTable {
		return printer.Print(r)
	}
	return output.PrintKeyValue(cmd.OutOrStdout(), relayDetails(r, time.Now()))
}

func relayDetails(r *apiclient.Relay, now time.Time) output.KeyValue {
	var kv output.KeyValue
	kv.Add("Name", r.Name)
	kv.Add("State", r.State)
	kv.Add("Endpoint", r.Endpoint)
	kv.Add("Backend", r.Backend)
	kv.Add("Begin", fmt.Sprint(r.Begin))
	kv.Add("Idle timeout", output.Millis(r.IdleTimeoutMs))
	kv.Add("Wake timeout", output.Millis(r.WakeTimeoutMs))
	kv.Add("Attached", output.Bool(r.Attached))
	if r.Device != "" {
		kv.Add("Device", r.Device)
	}
	kv.Add("Waiters", fmt.Sprint(r.Waiters))
	kv.Add("In flight", fmt.Sprint(r.InFlight))
	if r.Pending != "" {
		kv.Add("Pending", r.Pending)
	}
	kv.Add("Transitions", output.Bool(r.TransitionsEnabled))
	kv.Add("Closed", output.Bool(r.Closed))
	kv.Add("Sleeps", fmt.Sprint(r.Sleeps))
	kv.Add("Wakes", fmt.Sprint(r.Wakes))
	if !r.LastTransition.IsZero() {
		kv.Add("Last transition", output.Age(r.LastTransition, now)+" ago")
	}
	return kv
}
