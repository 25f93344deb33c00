package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/internal/telemetry"
	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/power"
)

// Dispatch routes one request through the relay.
//
// While ACTIVE the idle deadline is pushed out and the request is forwarded
// immediately. While IDLE a power-up intent is emitted, the wake timer is
// armed (once for any number of concurrent callers) and the caller blocks
// until the wake transition, then attaches the device and forwards.
//
// Errors: ErrDeviceUnavailable when the attach after a wake fails,
// ErrNoDevice when transitions are suspended and no handle is held,
// ErrRelayClosed after Close, ctx.Err() when the caller gives up waiting.
func (r *Relay) Dispatch(ctx context.Context, req *device.Request) (err error) {
	if err := req.Validate(); err != nil {
		return err
	}

	start := r.clock.Now()
	ctx = logger.WithDispatch(ctx, r.cfg.Name, string(req.Op), req.Offset, req.Length)
	ctx, span := telemetry.StartDispatchSpan(ctx, r.cfg.Name, string(req.Op),
		telemetry.Offset(req.Offset), telemetry.Length(req.Length))
	defer func() {
		if err != nil {
			logger.DebugCtx(ctx, "Dispatch failed", logger.KeyError, err)
		}
		telemetry.RecordError(ctx, err)
		span.End()
		r.metrics.ObserveDispatch(r.cfg.Name, req.Op, dispatchResult(err), r.clock.Since(start))
	}()

	dev, err := r.gate(ctx)
	if err != nil {
		return err
	}
	defer r.done()

	return r.forward(ctx, dev, req)
}

// gate resolves the device a request should go to, blocking through a wake
// if needed. On success one request is held in flight on the device.
func (r *Relay) gate(ctx context.Context) (device.Device, error) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return nil, ErrRelayClosed
	}

	if !r.transitionsEnabled {
		dev := r.dev
		if dev == nil {
			r.mu.Unlock()
			return nil, ErrNoDevice
		}
		r.hold()
		r.mu.Unlock()
		return dev, nil
	}

	if r.state == StateActive {
		r.arm(r.cfg.IdleTimeout, TransitionSleep, true)
		if dev := r.dev; dev != nil {
			r.hold()
			r.mu.Unlock()
			return dev, nil
		}
		// Woken but not attached yet: join the attach.
		r.mu.Unlock()
		return r.attach(ctx)
	}

	var powerUp *Event
	if r.arm(r.cfg.WakeTimeout, TransitionWake, false) {
		if r.releasing {
			// The sleep still owes its OFF; it emits ON right after.
			r.onDeferred = true
		} else {
			ev := r.emitIntent(power.On)
			powerUp = &ev
		}
	}
	ch := r.wakeCh
	r.waiters++
	waiters := r.waiters
	r.mu.Unlock()

	if powerUp != nil {
		r.observe(*powerUp)
	}
	r.metrics.SetWaiters(r.cfg.Name, waiters)
	telemetry.AddEvent(ctx, telemetry.EventWait)
	logger.DebugCtx(ctx, "Dispatch waiting for wake", logger.KeyWaiters, waiters)

	if err := r.wait(ctx, ch); err != nil {
		return nil, err
	}
	telemetry.AddEvent(ctx, telemetry.EventWoken)

	return r.attach(ctx)
}

// wait blocks until ch is closed by a wake or by Close.
func (r *Relay) wait(ctx context.Context, ch chan struct{}) error {
	start := r.clock.Now()

	select {
	case <-ch:
	case <-ctx.Done():
		r.mu.Lock()
		if r.wakeCh == ch && !r.closed {
			r.waiters--
			r.metrics.SetWaiters(r.cfg.Name, r.waiters)
		}
		r.mu.Unlock()
		return ctx.Err()
	}

	r.metrics.ObserveWait(r.cfg.Name, r.clock.Since(start))

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRelayClosed
	}
	return nil
}

// forward translates the request offset into the device address space and
// submits it.
func (r *Relay) forward(ctx context.Context, dev device.Device, req *device.Request) error {
	fwd := *req
	if req.Op != device.OpFlush {
		if req.Offset < r.cfg.Begin {
			return fmt.Errorf("%w: offset %d before mapping start %d", device.ErrOutOfRange, req.Offset, r.cfg.Begin)
		}
		fwd.Offset = req.Offset - r.cfg.Begin
	}
	return device.Submit(ctx, dev, &fwd)
}

func dispatchResult(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrDeviceUnavailable):
		return ResultUnavailable
	case errors.Is(err, ErrNoDevice):
		return ResultNoDevice
	case errors.Is(err, ErrRelayClosed):
		return ResultClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}
