// Package cmdutil holds the flags and helpers shared by API client commands.
package cmdutil

import (
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/marmos91/dittorelay/internal/cli/output"
	"github.com/marmos91/dittorelay/pkg/apiclient"
)

// DefaultServerURL is used when neither --server nor DITTORELAY_SERVER is set.
const DefaultServerURL = "http://localhost:8080"

// GlobalFlags are the persistent flags of the client commands.
type GlobalFlags struct {
	ServerURL string
	Output    string
	NoColor   bool
}

// Flags is populated by the root command before a subcommand runs.
var Flags GlobalFlags

// ServerURL resolves the API URL from the flag, then the environment.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	if env := strings.TrimSpace(os.Getenv("DITTORELAY_SERVER")); env != "" {
		return env
	}
	return DefaultServerURL
}

// GetClient returns an API client for the resolved server.
func GetClient() *apiclient.Client {
	return apiclient.New(ServerURL())
}

// GetPrinter returns a printer for the -o flag on stdout. Color is used
// only on a terminal.
func GetPrinter() (*output.Printer, error) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return nil, err
	}
	color := !Flags.NoColor && term.IsTerminal(int(os.Stdout.Fd()))
	return output.NewPrinter(os.Stdout, format, color), nil
}
