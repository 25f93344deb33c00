package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/internal/cli/output"
	"github.com/marmos91/dittorelay/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the health of a running dittorelay server.

Calls the liveness, readiness and per-relay health endpoints.

Examples:
  # Check the local server
  dittorelay status

  # Check a remote server as JSON
  dittorelay status --server http://relay-host:8080 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus is the combined health of a server.
type ServerStatus struct {
	Server  string                  `json:"server" yaml:"server"`
	Running bool                    `json:"running" yaml:"running"`
	Ready   bool                    `json:"ready" yaml:"ready"`
	Message string                  `json:"message,omitempty" yaml:"message,omitempty"`
	Journal string                  `json:"journal,omitempty" yaml:"journal,omitempty"`
	Relays  []apiclient.RelayHealth `json:"relays" yaml:"relays"`
}

// Headers implements output.TableRenderer.
func (s ServerStatus) Headers() []string {
	return []string{"RELAY", "STATE", "ATTACHED", "HEALTH"}
}

// Rows implements output.TableRenderer.
func (s ServerStatus) Rows() [][]string {
	rows := make([][]string, 0, len(s.Relays))
	for _, r := range s.Relays {
		rows = append(rows, []string{r.Name, r.State, output.Bool(r.Attached), r.Status})
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client := cmdutil.GetClient().WithTimeout(10 * time.Second)
	status := collectStatus(ctx, client)

	if printer.Format() != output.FormatTable {
		return printer.Print(status)
	}

	var kv output.KeyValue
	kv.Add("Server", status.Server)
	kv.Add("Running", output.Bool(status.Running))
	kv.Add("Ready", output.Bool(status.Ready))
	if status.Journal != "" {
		kv.Add("Journal", status.Journal)
	}
	if status.Message != "" {
		kv.Add("Message", status.Message)
	}
	if err := output.PrintKeyValue(cmd.OutOrStdout(), kv); err != nil {
		return err
	}
	if len(status.Relays) == 0 {
		return nil
	}
	cmd.Println()
	return output.PrintTable(cmd.OutOrStdout(), status)
}

func collectStatus(ctx context.Context, client *apiclient.Client) ServerStatus {
	status := ServerStatus{Server: client.BaseURL()}

	if _, err := client.Health(ctx); err != nil {
		status.Message = err.Error()
		return status
	}
	status.Running = true

	ready, err := client.Ready(ctx)
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Ready = true
		var data struct {
			Journal string `json:"journal"`
		}
		if json.Unmarshal(ready.Data, &data) == nil {
			status.Journal = data.Journal
		}
	}

	if relays, err := client.RelaysHealth(ctx); err == nil {
		status.Relays = relays
	}
	return status
}
