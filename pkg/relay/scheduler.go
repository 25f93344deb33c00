package relay

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marmos91/dittorelay/internal/logger"
)

// scheduler holds the single deferred action of a relay. Every arm and
// cancel bumps gen; a fired or queued action only runs if its generation is
// still current, so superseded timers become no-ops.
type scheduler struct {
	timer   clockwork.Timer
	pending bool       // timer armed and not yet fired
	kind    Transition // transition of the armed timer
	gen     uint64

	queued   bool       // fired, waiting for the worker
	fired    Transition // transition of the queued action
	firedGen uint64
}

// arm schedules a deferred transition after delay. With force the pending
// action is replaced; without it, arm does nothing when an action is
// already pending or queued. Returns whether a timer was armed.
//
// Must be called with r.mu held.
func (r *Relay) arm(delay time.Duration, kind Transition, force bool) bool {
	if !r.transitionsEnabled {
		return false
	}

	if r.sched.pending || r.sched.queued {
		if !force {
			return false
		}
		if r.sched.pending {
			r.sched.timer.Stop()
		}
	}

	r.sched.gen++
	gen := r.sched.gen
	r.sched.pending = true
	r.sched.queued = false
	r.sched.kind = kind
	r.sched.timer = r.clock.AfterFunc(delay, func() { r.fire(gen) })

	logger.Debug("Relay action armed",
		logger.KeyRelay, r.cfg.Name,
		logger.KeyAction, string(kind),
		logger.KeyDelayMs, delay.Milliseconds(),
		logger.KeyForce, force)
	return true
}

// cancel stops the pending timer and invalidates any queued action.
//
// Must be called with r.mu held.
func (r *Relay) cancel() {
	if r.sched.pending {
		r.sched.timer.Stop()
	}
	r.sched.pending = false
	r.sched.queued = false
	r.sched.gen++
}

// fire runs in timer context. It only hands the action to the work queue.
func (r *Relay) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sched.pending || gen != r.sched.gen {
		return
	}
	r.sched.pending = false
	r.sched.queued = true
	r.sched.fired = r.sched.kind
	r.sched.firedGen = gen

	if !r.queue.Enqueue(r.key, r.process) && !r.queue.Queued(r.key) {
		// Queue stopped: nothing will consume the action.
		r.sched.queued = false
		r.sched.fired = ""
		logger.Warn("Relay action dropped", logger.KeyRelay, r.cfg.Name, logger.KeyAction, string(r.sched.kind))
	}
}

// pendingAction reports the armed or queued transition, or "".
//
// Must be called with r.mu held.
func (r *Relay) pendingAction() Transition {
	switch {
	case r.sched.pending:
		return r.sched.kind
	case r.sched.queued:
		return r.sched.fired
	}
	return ""
}
