package power

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variables passed to power commands.
const (
	EnvSwitch   = "RELAY_SWITCH"
	EnvName     = "RELAY_NAME"
	EnvEndpoint = "RELAY_ENDPOINT"
)

// Command runs a local program for every event. The event is passed in the
// environment, so a single script can handle both intents.
type Command struct {
	Path string
	Args []string
}

// Notify runs the command and waits for it.
func (c Command) Notify(ctx context.Context, ev Event) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(),
		EnvSwitch+"="+string(ev.Intent),
		EnvName+"="+ev.Relay,
		EnvEndpoint+"="+ev.Endpoint,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("power command %s: %w: %s", c.Path, err, msg)
		}
		return fmt.Errorf("power command %s: %w", c.Path, err)
	}
	return nil
}
