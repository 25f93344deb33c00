// Package memory provides in-memory block devices for testing and demos.
//
// A Pool holds named disks that survive attach/detach cycles. Disks can be
// powered off (Acquire fails with ErrNotFound) or marked busy (ErrBusy) to
// simulate the external device going away.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittorelay/pkg/device"
)

// Stats counts handle activity for one disk.
type Stats struct {
	Acquires int
	Releases int
	Attached int
}

type disk struct {
	mu       sync.RWMutex
	data     []byte
	present  bool
	busy     bool
	closeErr error
	stats    Stats
}

// Pool is a registry of in-memory disks addressed by name.
type Pool struct {
	mu    sync.Mutex
	disks map[string]*disk
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{disks: make(map[string]*disk)}
}

// Create adds a powered-on disk of the given size.
func (p *Pool) Create(name string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("memory disk %q: size must be positive", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.disks[name]; ok {
		return fmt.Errorf("memory disk %q already exists", name)
	}
	p.disks[name] = &disk{data: make([]byte, size), present: true}
	return nil
}

// PowerOff makes subsequent acquisitions of name fail with ErrNotFound.
// Existing handles keep working.
func (p *Pool) PowerOff(name string) { p.set(name, func(d *disk) { d.present = false }) }

// PowerOn reverses PowerOff.
func (p *Pool) PowerOn(name string) { p.set(name, func(d *disk) { d.present = true }) }

// SetBusy makes subsequent acquisitions of name fail with ErrBusy.
func (p *Pool) SetBusy(name string, busy bool) { p.set(name, func(d *disk) { d.busy = busy }) }

// SetReleaseError makes Close on handles of name return err.
func (p *Pool) SetReleaseError(name string, err error) {
	p.set(name, func(d *disk) { d.closeErr = err })
}

// Stats returns the handle counters for name.
func (p *Pool) Stats(name string) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.disks[name]; ok {
		return d.stats
	}
	return Stats{}
}

func (p *Pool) set(name string, fn func(*disk)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.disks[name]; ok {
		fn(d)
	}
}

// Acquire attaches the disk named endpoint.
func (p *Pool) Acquire(ctx context.Context, endpoint string) (device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.disks[endpoint]
	if !ok || !d.present {
		return nil, fmt.Errorf("memory disk %q: %w", endpoint, device.ErrNotFound)
	}
	if d.busy {
		return nil, fmt.Errorf("memory disk %q: %w", endpoint, device.ErrBusy)
	}

	d.stats.Acquires++
	d.stats.Attached++
	return &Handle{pool: p, name: endpoint, disk: d}, nil
}

// Handle is an attached in-memory disk.
type Handle struct {
	pool   *Pool
	name   string
	disk   *disk
	mu     sync.RWMutex
	closed bool
}

func (h *Handle) Name() string { return "memory:" + h.name }

func (h *Handle) Size() int64 {
	h.disk.mu.RLock()
	defer h.disk.mu.RUnlock()
	return int64(len(h.disk.data))
}

func (h *Handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := h.check(ctx); err != nil {
		return 0, err
	}

	h.disk.mu.RLock()
	defer h.disk.mu.RUnlock()

	if err := device.CheckRange(int64(len(h.disk.data)), off, int64(len(p))); err != nil {
		return 0, err
	}
	return copy(p, h.disk.data[off:]), nil
}

func (h *Handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := h.check(ctx); err != nil {
		return 0, err
	}

	h.disk.mu.Lock()
	defer h.disk.mu.Unlock()

	if err := device.CheckRange(int64(len(h.disk.data)), off, int64(len(p))); err != nil {
		return 0, err
	}
	return copy(h.disk.data[off:], p), nil
}

func (h *Handle) Flush(ctx context.Context) error {
	return h.check(ctx)
}

func (h *Handle) Discard(ctx context.Context, off, length int64) error {
	if err := h.check(ctx); err != nil {
		return err
	}

	h.disk.mu.Lock()
	defer h.disk.mu.Unlock()

	if err := device.CheckRange(int64(len(h.disk.data)), off, length); err != nil {
		return err
	}
	clear(h.disk.data[off : off+length])
	return nil
}

// Close detaches the handle. A second Close returns ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return device.ErrClosed
	}
	h.closed = true
	h.mu.Unlock()

	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()

	h.disk.stats.Releases++
	h.disk.stats.Attached--
	return h.disk.closeErr
}

func (h *Handle) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return device.ErrClosed
	}
	return nil
}

var _ device.Provider = (*Pool)(nil)
var _ device.Device = (*Handle)(nil)
