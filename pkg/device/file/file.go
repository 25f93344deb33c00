//go:build unix

// Package file provides a device backend over a regular file or a host block
// device node.
//
// Acquire takes a non-blocking exclusive flock on the path so two relays (or
// a relay and another tool) cannot attach the same device at once.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
)

// Config holds configuration for the file backend.
type Config struct {
	// Create makes Acquire create a missing regular file of Size bytes
	// instead of failing with ErrNotFound.
	Create bool

	// Size is used when Create is set.
	Size int64

	// Sync makes Flush call fdatasync.
	Sync bool
}

// Provider attaches files by path.
type Provider struct {
	cfg Config
}

// New creates a file provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Acquire opens endpoint read-write and locks it.
func (p *Provider) Acquire(ctx context.Context, endpoint string) (device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flags := os.O_RDWR
	if p.cfg.Create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(endpoint, flags, 0o644)
	if err != nil {
		return nil, classifyOpenError(endpoint, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("file %q: %w", endpoint, device.ErrBusy)
		}
		return nil, fmt.Errorf("file %q: flock: %w", endpoint, err)
	}

	size, err := deviceSize(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("file %q: %w", endpoint, err)
	}
	if size == 0 && p.cfg.Create && p.cfg.Size > 0 {
		if err := f.Truncate(p.cfg.Size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("file %q: truncate: %w", endpoint, err)
		}
		size = p.cfg.Size
	}

	logger.Debug("File device attached", logger.KeyPath, endpoint, "size", size)
	return &Device{f: f, path: endpoint, size: size, sync: p.cfg.Sync}, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return fmt.Errorf("file %q: %w", path, device.ErrNotFound)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("file %q: %w", path, device.ErrBusy)
	default:
		return fmt.Errorf("file %q: %w", path, err)
	}
}

// deviceSize works for both regular files and block device nodes, whose
// Stat size is zero.
func deviceSize(f *os.File) (int64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	return size, nil
}

// Device is an attached file.
type Device struct {
	mu     sync.RWMutex
	f      *os.File
	path   string
	size   int64
	sync   bool
	closed bool
}

func (d *Device) Name() string { return "file:" + d.path }
func (d *Device) Size() int64  { return d.size }

func (d *Device) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}
	n, err := d.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

func (d *Device) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}
	return d.f.WriteAt(p, off)
}

func (d *Device) Flush(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, 0, 0); err != nil {
		return err
	}
	if !d.sync {
		return nil
	}
	return unix.Fdatasync(int(d.f.Fd()))
}

func (d *Device) Discard(ctx context.Context, off, length int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, length); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	if err := punchHole(d.f, off, length); err == nil {
		return nil
	}
	// Filesystems without hole punching get zeros written instead.
	_, err := d.f.WriteAt(make([]byte, length), off)
	return err
}

// Close unlocks and closes the file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	d.closed = true

	unlockErr := unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	closeErr := d.f.Close()
	return errors.Join(unlockErr, closeErr)
}

// check must be called with d.mu held.
func (d *Device) check(ctx context.Context, off, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed {
		return device.ErrClosed
	}
	return device.CheckRange(d.size, off, length)
}

var _ device.Provider = (*Provider)(nil)
var _ device.Device = (*Device)(nil)
