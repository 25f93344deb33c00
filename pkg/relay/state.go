package relay

import (
	"context"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/internal/telemetry"
	"github.com/marmos91/dittorelay/pkg/power"
)

// process is the work item body. It applies the most recently fired
// transition if it is still current and still matches the state.
func (r *Relay) process(ctx context.Context) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	kind, gen := r.sched.fired, r.sched.firedGen
	current := r.sched.queued && gen == r.sched.gen
	r.sched.queued = false
	r.sched.fired = ""

	if r.closed || !current {
		r.mu.Unlock()
		logger.Debug("Relay action superseded", logger.KeyRelay, r.cfg.Name, logger.KeyAction, string(kind))
		return
	}

	switch kind {
	case TransitionSleep:
		r.sleep(ctx)
	case TransitionWake:
		r.wake()
	default:
		r.mu.Unlock()
	}
}

// sleep moves ACTIVE to IDLE and releases the device. Called with r.mu
// held and r.lifeMu held; returns with r.mu released.
func (r *Relay) sleep(ctx context.Context) {
	if r.state != StateActive {
		r.mu.Unlock()
		return
	}
	if r.inflight > 0 {
		// Requests still on the device: push the deadline out again.
		r.arm(r.cfg.IdleTimeout, TransitionSleep, true)
		r.mu.Unlock()
		return
	}

	dev := r.dev
	r.dev = nil
	r.state = StateIdle
	r.sleeps++
	r.lastTransition = r.clock.Now()
	r.releasing = true
	r.mu.Unlock()

	logger.Info("Relay transition",
		logger.KeyRelay, r.cfg.Name,
		logger.KeyTransition, string(TransitionSleep),
		logger.KeyState, string(StateIdle))
	r.metrics.RecordTransition(r.cfg.Name, StateActive, StateIdle)
	r.metrics.SetState(r.cfg.Name, StateIdle)

	if dev != nil {
		_, span := telemetry.StartRelaySpan(ctx, telemetry.SpanRelease, r.cfg.Name, telemetry.Device(dev.Name()))
		r.releaseDevice(dev)
		span.End()
	}

	// OFF is emitted once the handle is gone, and before any ON requested
	// by a dispatch that found the relay IDLE meanwhile.
	r.mu.Lock()
	r.releasing = false
	intents := []Event{r.emitIntent(power.Off)}
	if r.onDeferred {
		r.onDeferred = false
		intents = append(intents, r.emitIntent(power.On))
	}
	r.mu.Unlock()

	r.observe(Event{Kind: EventTransition, From: StateActive, To: StateIdle})
	for _, ev := range intents {
		r.observe(ev)
	}
}

// wake moves IDLE to ACTIVE and wakes every waiter. The waiters attach the
// device. Called with r.mu held; returns with it released.
func (r *Relay) wake() {
	if r.state != StateIdle {
		r.mu.Unlock()
		return
	}

	r.state = StateActive
	r.wakes++
	r.lastTransition = r.clock.Now()
	close(r.wakeCh)
	r.wakeCh = make(chan struct{})
	woken := r.waiters
	r.waiters = 0

	// If nobody is left to attach, the relay still goes idle again.
	r.arm(r.cfg.IdleTimeout, TransitionSleep, true)
	r.mu.Unlock()

	logger.Info("Relay transition",
		logger.KeyRelay, r.cfg.Name,
		logger.KeyTransition, string(TransitionWake),
		logger.KeyState, string(StateActive),
		logger.KeyWaiters, woken)
	r.metrics.RecordTransition(r.cfg.Name, StateIdle, StateActive)
	r.metrics.SetState(r.cfg.Name, StateActive)
	r.metrics.SetWaiters(r.cfg.Name, 0)

	r.observe(Event{Kind: EventTransition, From: StateIdle, To: StateActive})
}
