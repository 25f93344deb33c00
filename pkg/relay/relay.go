// Package relay implements a power-gating relay in front of a block device.
//
// A Relay keeps its device attached only while I/O flows. After IdleTimeout
// without a dispatch the device is released and a power-down intent is
// emitted. The next dispatch emits a power-up intent, waits WakeTimeout for
// the device to come up, re-attaches it and forwards the request.
//
// State machine:
//
//	          idle timer fires (sleep)
//	ACTIVE ────────────────────────────▶ IDLE
//	   ▲                                   │
//	   └───────────────────────────────────┘
//	          wake timer fires (wake)
//
// Timers never run transitions inline. A fired timer enqueues the relay's
// work item on a shared workqueue.Queue, and the worker applies the
// transition if it is still current. Device acquisition after a wake is
// done by the woken dispatchers, collapsed into a single attach.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/power"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

// State is the relay power state.
type State string

const (
	// StateActive means the device is attached and I/O flows directly.
	StateActive State = "ACTIVE"

	// StateIdle means the device is detached and no handle is held.
	StateIdle State = "IDLE"
)

// Transition names the intent of a deferred action.
type Transition string

const (
	// TransitionSleep moves ACTIVE to IDLE.
	TransitionSleep Transition = "sleep"

	// TransitionWake moves IDLE to ACTIVE.
	TransitionWake Transition = "wake"
)

// Options carries the collaborators of a Relay.
type Options struct {
	// Provider attaches the device. Required.
	Provider device.Provider

	// Queue runs deferred actions. Required, and usually shared by every
	// relay in the process.
	Queue *workqueue.Queue

	// Clock drives the timers. Defaults to the real clock.
	Clock clockwork.Clock

	// Power receives power intents. Optional.
	Power PowerEmitter

	// Observer receives transition events. Optional.
	Observer Observer

	// Metrics records relay activity. Optional.
	Metrics Metrics
}

// Relay gates one device. All methods are safe for concurrent use.
type Relay struct {
	cfg      Config
	key      string
	provider device.Provider
	queue    *workqueue.Queue
	clock    clockwork.Clock
	power    PowerEmitter
	observer Observer
	metrics  Metrics

	attachGroup singleflight.Group

	// lifeMu serializes device acquire and release. Lock order: lifeMu, mu.
	lifeMu sync.Mutex

	mu                 sync.Mutex
	state              State
	dev                device.Device
	sched              scheduler
	wakeCh             chan struct{} // closed and replaced on every wake
	waiters            int
	inflight           int
	io                 sync.WaitGroup
	transitionsEnabled bool
	closed             bool
	releasing          bool // sleep is releasing the device, OFF not yet emitted
	onDeferred         bool // a wake armed while releasing; ON follows OFF
	sleeps             uint64
	wakes              uint64
	lastTransition     time.Time
}

// New validates cfg, attaches the device and returns an ACTIVE relay with
// its idle timer armed.
func New(ctx context.Context, cfg Config, opts Options) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Provider == nil {
		return nil, errors.New("relay: device provider is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("relay: work queue is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	r := &Relay{
		cfg:                cfg,
		provider:           opts.Provider,
		queue:              opts.Queue,
		clock:              opts.Clock,
		power:              opts.Power,
		observer:           opts.Observer,
		metrics:            opts.Metrics,
		state:              StateActive,
		wakeCh:             make(chan struct{}),
		transitionsEnabled: true,
	}
	r.key = fmt.Sprintf("relay/%s@%p", cfg.Name, r)

	actx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()

	dev, err := r.provider.Acquire(actx, cfg.Endpoint)
	if err != nil {
		r.metrics.RecordAcquireFailure(cfg.Name, acquireReason(err))
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	r.mu.Lock()
	r.dev = dev
	r.lastTransition = r.clock.Now()
	r.arm(cfg.IdleTimeout, TransitionSleep, true)
	r.mu.Unlock()

	r.metrics.SetState(cfg.Name, StateActive)
	logger.Info("Relay created",
		logger.KeyRelay, cfg.Name,
		logger.KeyEndpoint, cfg.Endpoint,
		logger.KeyDevice, dev.Name(),
		"idle_timeout_ms", cfg.IdleTimeout.Milliseconds(),
		"wake_timeout_ms", cfg.WakeTimeout.Milliseconds())

	return r, nil
}

// NewFromArgs parses positional construction arguments (see ParseArgs) and
// creates the relay. Nothing is allocated when the arguments are invalid.
func NewFromArgs(ctx context.Context, name string, args []string, opts Options) (*Relay, error) {
	cfg, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if name != "" {
		cfg.Name = name
	}
	return New(ctx, cfg, opts)
}

// Name returns the relay name.
func (r *Relay) Name() string { return r.cfg.Name }

// Config returns the relay configuration.
func (r *Relay) Config() Config { return r.cfg }

// State returns the current state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Device returns the held device handle, or ErrDeviceUnavailable.
func (r *Relay) Device() (device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return nil, ErrDeviceUnavailable
	}
	return r.dev, nil
}

// Suspend stops state transitions: the pending timer is cancelled and no
// new one is armed until Resume. Dispatch keeps using the held handle, or
// fails with ErrNoDevice when there is none.
func (r *Relay) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.transitionsEnabled {
		return
	}
	r.transitionsEnabled = false
	r.cancel()

	logger.Info("Relay suspended", logger.KeyRelay, r.cfg.Name, logger.KeyState, string(r.state))
}

// Resume re-enables transitions. An ACTIVE relay re-arms its idle timer and
// an IDLE relay with waiters re-arms its wake timer.
func (r *Relay) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.transitionsEnabled {
		return
	}
	r.transitionsEnabled = true

	switch {
	case r.state == StateActive:
		r.arm(r.cfg.IdleTimeout, TransitionSleep, false)
	case r.waiters > 0:
		r.arm(r.cfg.WakeTimeout, TransitionWake, false)
	}

	logger.Info("Relay resumed", logger.KeyRelay, r.cfg.Name, logger.KeyState, string(r.state))
}

// Close tears the relay down: transitions are disabled, the pending timer
// is cancelled, queued or running actions are drained, waiting dispatchers
// fail with ErrRelayClosed, in-flight I/O completes, and the held handle is
// released. Close is idempotent.
//
// If ctx expires while draining, the handle is released anyway and the
// context error is returned.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.transitionsEnabled = false
	r.cancel()
	close(r.wakeCh)
	r.waiters = 0
	r.mu.Unlock()

	r.metrics.SetWaiters(r.cfg.Name, 0)

	var errs []error
	if err := r.queue.Flush(ctx, r.key); err != nil {
		logger.Warn("Relay close: pending action not drained", logger.KeyRelay, r.cfg.Name, logger.KeyError, err)
		errs = append(errs, err)
	}
	if err := r.waitIO(ctx); err != nil {
		logger.Warn("Relay close: in-flight I/O not drained", logger.KeyRelay, r.cfg.Name, logger.KeyError, err)
		errs = append(errs, err)
	}

	r.lifeMu.Lock()
	r.mu.Lock()
	dev := r.dev
	r.dev = nil
	r.mu.Unlock()
	if dev != nil {
		r.releaseDevice(dev)
	}
	r.lifeMu.Unlock()

	logger.Info("Relay closed", logger.KeyRelay, r.cfg.Name)
	return errors.Join(errs...)
}

func (r *Relay) waitIO(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.io.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hold marks one request in flight on the held handle. Must be called with mu held.
func (r *Relay) hold() {
	r.inflight++
	r.io.Add(1)
}

// done ends a request started with hold.
func (r *Relay) done() {
	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
	r.io.Done()
}

// releaseDevice closes dev. Failures are logged and reported, never returned.
func (r *Relay) releaseDevice(dev device.Device) {
	if err := dev.Close(); err != nil {
		logger.Warn("Device release failed",
			logger.KeyRelay, r.cfg.Name,
			logger.KeyDevice, dev.Name(),
			logger.KeyError, err)
		r.metrics.RecordReleaseFailure(r.cfg.Name)
		r.observe(Event{Kind: EventReleaseFailed, Err: err})
	}
}

// emitIntent hands a power intent to the emitter. Intents leave the relay
// in the order they are emitted, so it must be called with mu held. The
// returned event goes to the observer once mu is released.
func (r *Relay) emitIntent(i power.Intent) Event {
	logger.Info("Power intent", logger.KeyRelay, r.cfg.Name, logger.KeyIntent, string(i))
	r.metrics.RecordPowerIntent(r.cfg.Name, i)

	at := r.clock.Now()
	if r.power != nil {
		r.power.Emit(power.Event{Relay: r.cfg.Name, Endpoint: r.cfg.Endpoint, Intent: i, At: at})
	}
	return Event{Kind: EventPowerIntent, Intent: i, At: at}
}

func (r *Relay) observe(ev Event) {
	if r.observer == nil {
		return
	}
	ev.Relay = r.cfg.Name
	ev.Endpoint = r.cfg.Endpoint
	if ev.At.IsZero() {
		ev.At = r.clock.Now()
	}
	r.observer.Observe(ev)
}

func acquireReason(err error) string {
	switch {
	case errors.Is(err, device.ErrNotFound):
		return "not_found"
	case errors.Is(err, device.ErrBusy):
		return "busy"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveDispatch(string, device.Op, string, time.Duration) {}
func (nopMetrics) ObserveWait(string, time.Duration)                        {}
func (nopMetrics) RecordTransition(string, State, State)                    {}
func (nopMetrics) SetState(string, State)                                   {}
func (nopMetrics) SetWaiters(string, int)                                   {}
func (nopMetrics) RecordAcquireFailure(string, string)                      {}
func (nopMetrics) RecordReleaseFailure(string)                              {}
func (nopMetrics) RecordPowerIntent(string, power.Intent)                   {}
