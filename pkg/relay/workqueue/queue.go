// Package workqueue runs deferred relay actions on a shared worker pool.
//
// Work is identified by key. A key that is already queued is not queued
// again, and the pool never runs two items with the same key at once: a key
// enqueued while running is re-queued when the current run finishes. Flush
// waits until a key is neither queued nor running.
package workqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittorelay/internal/logger"
)

// Func is the body of a work item.
type Func func(ctx context.Context)

// Config configures a Queue.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to 1.
	Workers int

	// ItemTimeout bounds the context passed to each run. Defaults to 1 minute.
	ItemTimeout time.Duration
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending   int
	Running   int
	Completed int
	Panics    int
}

type item struct {
	fn      Func
	queued  bool
	running bool
	idle    chan struct{} // closed when the item is neither queued nor running
}

// Queue is a keyed, non-reentrant work queue.
type Queue struct {
	workers     int
	itemTimeout time.Duration

	mu      sync.Mutex
	items   map[string]*item
	ready   []string
	running int
	stats   Stats
	started bool
	stopped bool

	notify    chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	group     errgroup.Group
}

// New creates a queue. Call Start before work can run.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = time.Minute
	}
	return &Queue{
		workers:     cfg.Workers,
		itemTimeout: cfg.ItemTimeout,
		items:       make(map[string]*item),
		notify:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
}

// Start launches the workers. Calling Start more than once is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	logger.Info("Starting work queue", "workers", q.workers)

	for i := 0; i < q.workers; i++ {
		id := i
		q.group.Go(func() error {
			q.worker(id)
			return nil
		})
	}

	go func() {
		_ = q.group.Wait()
		close(q.stoppedCh)
	}()
}

// Stop signals the workers to exit after draining queued work and waits up
// to timeout for them.
func (q *Queue) Stop(timeout time.Duration) {
	q.mu.Lock()
	if !q.started || q.stopped {
		// Never started: nothing will run the queued items, so release
		// anyone flushing them.
		if !q.stopped {
			for key, it := range q.items {
				close(it.idle)
				delete(q.items, key)
			}
			q.ready = nil
		}
		q.stopped = true
		q.mu.Unlock()
		return
	}
	q.stopped = true
	pending := len(q.ready)
	q.mu.Unlock()

	logger.Info("Stopping work queue", logger.KeyPending, pending)
	close(q.stopCh)

	select {
	case <-q.stoppedCh:
		logger.Info("Work queue stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Work queue stop timed out", logger.KeyPending, q.Stats().Pending)
	}
}

// Enqueue schedules fn under key. It returns false when key is already
// queued or the queue is stopped.
func (q *Queue) Enqueue(key string, fn Func) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		logger.Warn("Work queue stopped, dropping item", "key", key)
		return false
	}

	it, ok := q.items[key]
	if !ok {
		it = &item{idle: make(chan struct{})}
		q.items[key] = it
	}
	if it.queued {
		return false
	}
	it.fn = fn
	it.queued = true

	// A running item is re-queued by its worker when the run finishes.
	if !it.running {
		q.push(key)
	}
	return true
}

// Queued reports whether key is waiting for a worker.
func (q *Queue) Queued(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[key]
	return ok && it.queued
}

// push must be called with q.mu held.
func (q *Queue) push(key string) {
	q.ready = append(q.ready, key)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Flush blocks until key is neither queued nor running, or ctx is done.
func (q *Queue) Flush(ctx context.Context, key string) error {
	q.mu.Lock()
	it, ok := q.items[key]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-it.idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush %q: %w", key, ctx.Err())
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = len(q.ready)
	s.Running = q.running
	return s
}

func (q *Queue) worker(id int) {
	logger.Debug("Work queue worker started", logger.KeyWorker, id)

	for {
		if key, it, ok := q.pop(); ok {
			q.run(key, it)
			continue
		}

		select {
		case <-q.notify:
		case <-q.stopCh:
			for {
				key, it, ok := q.pop()
				if !ok {
					break
				}
				q.run(key, it)
			}
			logger.Debug("Work queue worker stopped", logger.KeyWorker, id)
			return
		}
	}
}

// pop takes the next ready item and marks it running.
func (q *Queue) pop() (string, *item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return "", nil, false
	}
	key := q.ready[0]
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		// Wake another worker for the remainder.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}

	it := q.items[key]
	it.queued = false
	it.running = true
	q.running++
	return key, it, true
}

func (q *Queue) run(key string, it *item) {
	ctx, cancel := context.WithTimeout(context.Background(), q.itemTimeout)
	panicked := q.invoke(ctx, key, it.fn)
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	it.running = false
	q.running--
	q.stats.Completed++
	if panicked {
		q.stats.Panics++
	}

	if it.queued {
		q.push(key)
		return
	}
	close(it.idle)
	delete(q.items, key)
}

func (q *Queue) invoke(ctx context.Context, key string, fn Func) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logger.Error("Work item panicked", "key", key, "panic", r)
		}
	}()
	fn(ctx)
	return false
}
