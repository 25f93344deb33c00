package config

import (
	"net/http"

	"github.com/marmos91/dittorelay/pkg/power"
)

// BuildNotifier returns the notifiers configured in cfg, in the order log,
// command, webhook. An empty Multi discards every intent.
func BuildNotifier(cfg *PowerConfig) power.Multi {
	var m power.Multi

	if cfg.LogEnabled() {
		m = append(m, power.Log{})
	}
	if cfg.Command.Path != "" {
		m = append(m, power.Command{Path: cfg.Command.Path, Args: cfg.Command.Args})
	}
	if cfg.Webhook.URL != "" {
		m = append(m, power.Webhook{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Client:  &http.Client{Timeout: cfg.Timeout},
		})
	}
	return m
}

// BuildEmitter wraps BuildNotifier in an asynchronous emitter.
func BuildEmitter(cfg *PowerConfig) *power.Emitter {
	return power.NewEmitter(BuildNotifier(cfg), cfg.Timeout)
}
