package relay

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/internal/telemetry"
	"github.com/marmos91/dittorelay/pkg/device"
)

const attachKey = "attach"

// attach returns the held device, acquiring it if needed, and marks one
// request in flight on it. Concurrent callers share a single acquisition:
// the first acquirer wins and everyone observes its handle or its error.
func (r *Relay) attach(ctx context.Context) (device.Device, error) {
	ch := r.attachGroup.DoChan(attachKey, func() (any, error) {
		return r.acquire(ctx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	dev := res.Val.(device.Device)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRelayClosed
	}
	if r.dev != dev {
		return nil, fmt.Errorf("%w: device detached before use", ErrDeviceUnavailable)
	}
	r.hold()
	return dev, nil
}

// acquire attaches the device unless a handle is already held. On failure
// the relay drops back to IDLE; the caller decides whether to retry.
func (r *Relay) acquire(parent context.Context) (device.Device, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return nil, ErrRelayClosed
	case r.dev != nil:
		dev := r.dev
		r.mu.Unlock()
		return dev, nil
	case r.state != StateActive:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: relay went idle before attach", ErrDeviceUnavailable)
	}
	r.mu.Unlock()

	// The acquisition is shared, so one caller giving up must not fail it
	// for the others.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.cfg.AcquireTimeout)
	defer cancel()
	ctx, span := telemetry.StartRelaySpan(ctx, telemetry.SpanAttach, r.cfg.Name, telemetry.Endpoint(r.cfg.Endpoint))
	defer span.End()

	start := r.clock.Now()
	dev, err := r.provider.Acquire(ctx, r.cfg.Endpoint)

	r.mu.Lock()
	if err != nil {
		from := r.state
		r.state = StateIdle
		r.cancel()
		r.lastTransition = r.clock.Now()
		r.mu.Unlock()

		logger.ErrorCtx(parent, "Device attach failed",
			logger.KeyEndpoint, r.cfg.Endpoint,
			logger.KeyError, err)
		telemetry.RecordError(ctx, err)
		r.metrics.RecordAcquireFailure(r.cfg.Name, acquireReason(err))
		r.metrics.SetState(r.cfg.Name, StateIdle)
		if from != StateIdle {
			r.metrics.RecordTransition(r.cfg.Name, from, StateIdle)
		}
		r.observe(Event{Kind: EventAttachFailed, From: from, To: StateIdle, Err: err})

		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	if r.closed {
		r.mu.Unlock()
		r.releaseDevice(dev)
		return nil, ErrRelayClosed
	}

	r.dev = dev
	// A wake is always followed by an idle period.
	r.arm(r.cfg.IdleTimeout, TransitionSleep, true)
	r.mu.Unlock()

	elapsed := r.clock.Since(start)
	telemetry.AddEvent(ctx, telemetry.EventAttach, telemetry.Device(dev.Name()))
	logger.Info("Device attached",
		logger.KeyRelay, r.cfg.Name,
		logger.KeyDevice, dev.Name(),
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0)
	r.observe(Event{Kind: EventAttach, From: StateActive, To: StateActive})

	return dev, nil
}
