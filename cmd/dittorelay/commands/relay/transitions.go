package relay

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/cmd/dittorelay/cmdutil"
	"github.com/marmos91/dittorelay/pkg/apiclient"
)

var transitionsLimit int

var transitionsCmd = &cobra.Command{
	Use:   "transitions <name>",
	Short: "Show journaled transitions of a relay",
	Long: `Show the most recent journaled events of a relay, newest first:
sleeps, wakes, power intents and failed attaches or releases.

The server must run with the transition journal enabled.

Examples:
  dittorelay relay transitions disk0
  dittorelay relay transitions disk0 --limit 5 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runTransitions,
}

func init() {
	transitionsCmd.Flags().IntVar(&transitionsLimit, "limit", 20, "Maximum number of events")
}

// TransitionList renders journal records as a table.
type TransitionList []apiclient.Transition

// Headers implements output.TableRenderer.
func (l TransitionList) Headers() []string {
	return []string{"AT", "KIND", "FROM", "TO", "SWITCH", "ERROR"}
}

// Rows implements output.TableRenderer.
func (l TransitionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, t := range l {
		rows = append(rows, []string{
			t.At.Local().Format(time.DateTime),
			t.Kind,
			dash(t.From),
			dash(t.To),
			dash(t.Switch),
			dash(t.Error),
		})
	}
	return rows
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runTransitions(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.GetPrinter()
	if err != nil {
		return err
	}

	recs, err := cmdutil.GetClient().Transitions(cmd.Context(), args[0], transitionsLimit)
	if err != nil {
		return err
	}
	return printer.Print(TransitionList(recs))
}
