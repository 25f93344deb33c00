// Package power delivers power intents to whatever controls the physical
// device.
//
// The relay never powers anything itself. When it wants the device on or
// off it emits an Event, and a Notifier turns that into a log line, a local
// command, or an HTTP call.
package power

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/dittorelay/internal/logger"
)

// Intent is the requested power state.
type Intent string

const (
	On  Intent = "ON"
	Off Intent = "OFF"
)

// Event is one power intent emitted by a relay.
type Event struct {
	Relay    string    `json:"relay"`
	Endpoint string    `json:"endpoint"`
	Intent   Intent    `json:"switch"`
	At       time.Time `json:"at"`
}

// Notifier delivers a power event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Log only logs the event.
type Log struct{}

// Notify logs ev at INFO.
func (Log) Notify(_ context.Context, ev Event) error {
	logger.Info("Power intent",
		logger.KeyRelay, ev.Relay,
		logger.KeyEndpoint, ev.Endpoint,
		logger.KeyIntent, string(ev.Intent))
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers ev to every notifier in order.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter delivers events asynchronously so the caller never blocks on a
// notifier. Events of one relay are delivered one at a time in the order
// they were emitted; different relays do not wait on each other. Failures
// are logged.
type Emitter struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup

	mu    sync.Mutex
	lanes map[string][]Event // undelivered events per relay; present while a sender runs
}

// NewEmitter wraps n. Each delivery is bounded by timeout (default 10s).
func NewEmitter(n Notifier, timeout time.Duration) *Emitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Emitter{notifier: n, timeout: timeout, lanes: make(map[string][]Event)}
}

// Emit queues ev behind any undelivered event of the same relay.
func (e *Emitter) Emit(ev Event) {
	if e == nil || e.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	e.wg.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	pending, running := e.lanes[ev.Relay]
	e.lanes[ev.Relay] = append(pending, ev)
	if !running {
		go e.send(ev.Relay)
	}
}

// send drains the lane of relay and exits when it is empty.
func (e *Emitter) send(relay string) {
	for {
		e.mu.Lock()
		pending := e.lanes[relay]
		if len(pending) == 0 {
			delete(e.lanes, relay)
			e.mu.Unlock()
			return
		}
		ev := pending[0]
		e.lanes[relay] = pending[1:]
		e.mu.Unlock()

		e.deliver(ev)
		e.wg.Done()
	}
}

func (e *Emitter) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.notifier.Notify(ctx, ev); err != nil {
		logger.Warn("Power notification failed",
			logger.KeyRelay, ev.Relay,
			logger.KeyIntent, string(ev.Intent),
			logger.KeyError, err)
	}
}

// Wait blocks until every emitted event has been delivered or ctx is done.
func (e *Emitter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
