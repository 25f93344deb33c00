// Package registry holds the named relays of a server. Every relay in a
// registry shares one work queue for its deferred transitions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

var (
	// ErrRelayNotFound is returned when no relay has the requested name.
	//
	// API Mapping: 404 Not Found
	ErrRelayNotFound = errors.New("relay not found")

	// ErrRelayExists is returned when a relay name is already registered.
	//
	// API Mapping: 409 Conflict
	ErrRelayExists = errors.New("relay already exists")
)

// Options are the collaborators handed to every relay built by a registry.
type Options struct {
	Clock    clockwork.Clock
	Power    relay.PowerEmitter
	Observer relay.Observer
	Metrics  relay.Metrics
}

// Registry manages named relays. It is safe for concurrent use.
//
// Example usage:
//
//	q := workqueue.New(workqueue.Config{Workers: 2})
//	q.Start()
//	reg := NewRegistry(q, Options{Observer: journal})
//	r, err := reg.AddRelay(ctx, relay.Config{Name: "disk0", Endpoint: "/dev/sdb", ...}, file.New(file.Config{}))
//	...
//	_ = reg.CloseAll(ctx)
type Registry struct {
	queue *workqueue.Queue
	opts  Options

	mu       sync.RWMutex
	relays   map[string]*relay.Relay
	pending  map[string]struct{} // names being constructed
	backends map[string]string
}

// NewRegistry creates an empty registry on top of queue.
func NewRegistry(queue *workqueue.Queue, opts Options) *Registry {
	return &Registry{
		queue:    queue,
		opts:     opts,
		relays:   make(map[string]*relay.Relay),
		pending:  make(map[string]struct{}),
		backends: make(map[string]string),
	}
}

// Queue returns the shared work queue.
func (r *Registry) Queue() *workqueue.Queue {
	return r.queue
}

// AddRelay builds a relay on provider and registers it under cfg.Name
// (or cfg.Endpoint when Name is empty). The device is attached before
// AddRelay returns.
func (r *Registry) AddRelay(ctx context.Context, cfg relay.Config, provider device.Provider) (*relay.Relay, error) {
	return r.AddRelayWithBackend(ctx, cfg, provider, "")
}

// AddRelayWithBackend is AddRelay recording the backend type for display.
func (r *Registry) AddRelayWithBackend(ctx context.Context, cfg relay.Config, provider device.Provider, backend string) (*relay.Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name := cfg.Name

	r.mu.Lock()
	if _, ok := r.relays[name]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrRelayExists, name)
	}
	if _, ok := r.pending[name]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrRelayExists, name)
	}
	r.pending[name] = struct{}{}
	r.mu.Unlock()

	rl, err := relay.New(ctx, cfg, relay.Options{
		Provider: provider,
		Queue:    r.queue,
		Clock:    r.opts.Clock,
		Power:    r.opts.Power,
		Observer: r.opts.Observer,
		Metrics:  r.opts.Metrics,
	})

	r.mu.Lock()
	delete(r.pending, name)
	if err == nil {
		r.relays[name] = rl
		r.backends[name] = backend
	}
	r.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to create relay %q: %w", name, err)
	}
	logger.Debug("Relay registered", logger.KeyRelay, name, "backend", backend)
	return rl, nil
}

// GetRelay returns the relay registered under name.
func (r *Registry) GetRelay(name string) (*relay.Relay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rl, ok := r.relays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRelayNotFound, name)
	}
	return rl, nil
}

// Backend returns the backend type recorded for name, or "".
func (r *Registry) Backend(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// ListRelays returns every relay sorted by name.
func (r *Registry) ListRelays() []*relay.Relay {
	r.mu.RLock()
	out := make([]*relay.Relay, 0, len(r.relays))
	for _, rl := range r.relays {
		out = append(out, rl)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// CountRelays returns the number of registered relays.
func (r *Registry) CountRelays() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relays)
}

// RemoveRelay unregisters and closes the relay registered under name.
func (r *Registry) RemoveRelay(ctx context.Context, name string) error {
	r.mu.Lock()
	rl, ok := r.relays[name]
	if ok {
		delete(r.relays, name)
		delete(r.backends, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrRelayNotFound, name)
	}
	return rl.Close(ctx)
}

// CloseAll closes every relay concurrently and empties the registry.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	relays := r.relays
	r.relays = make(map[string]*relay.Relay)
	r.backends = make(map[string]string)
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for name, rl := range relays {
		g.Go(func() error {
			if err := rl.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("relay %q: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(relays) > 0 {
		logger.Info("Relays closed", "count", len(relays))
	}
	return errors.Join(errs...)
}
