// Package badger provides a device backend stored in a BadgerDB directory.
//
// The device is a fixed-size array of sectors. Only sectors that have been
// written are stored; missing sectors read as zeros. Badger's directory lock
// gives the same exclusivity as flock on a block device: a second Acquire of
// the same directory fails with ErrBusy.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
)

// DefaultSectorSize is used when Config.SectorSize is zero.
const DefaultSectorSize = 4096

// Config holds configuration for the badger backend.
type Config struct {
	// Size is the device capacity in bytes.
	Size int64

	// SectorSize is the storage granularity. Defaults to DefaultSectorSize.
	SectorSize int

	// SyncWrites makes every write durable before returning.
	SyncWrites bool
}

// Provider attaches badger directories by path.
type Provider struct {
	cfg Config
}

// New creates a badger provider.
func New(cfg Config) (*Provider, error) {
	if cfg.SectorSize == 0 {
		cfg.SectorSize = DefaultSectorSize
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("badger device: size must be positive")
	}
	if cfg.SectorSize < 0 || cfg.Size%int64(cfg.SectorSize) != 0 {
		return nil, fmt.Errorf("badger device: size %d is not a multiple of sector size %d", cfg.Size, cfg.SectorSize)
	}
	return &Provider{cfg: cfg}, nil
}

// Acquire opens the database in directory endpoint. The directory must exist.
func (p *Provider) Acquire(ctx context.Context, endpoint string) (device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(endpoint)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("badger %q: %w", endpoint, device.ErrNotFound)
		}
		return nil, fmt.Errorf("badger %q: %w", endpoint, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("badger %q: not a directory: %w", endpoint, device.ErrNotFound)
	}

	opts := badger.DefaultOptions(endpoint).
		WithLogger(nil).
		WithSyncWrites(p.cfg.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		if isLockError(err) {
			return nil, fmt.Errorf("badger %q: %w", endpoint, device.ErrBusy)
		}
		return nil, fmt.Errorf("badger %q: open: %w", endpoint, err)
	}

	logger.Debug("Badger device attached", logger.KeyPath, endpoint)
	return &Device{db: db, path: endpoint, size: p.cfg.Size, sector: int64(p.cfg.SectorSize)}, nil
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// Device is an attached badger database.
type Device struct {
	mu     sync.RWMutex
	db     *badger.DB
	path   string
	size   int64
	sector int64
	closed bool
}

func (d *Device) Name() string { return "badger:" + d.path }
func (d *Device) Size() int64  { return d.size }

func sectorKey(idx int64) []byte {
	key := make([]byte, 2+8)
	copy(key, "s/")
	binary.BigEndian.PutUint64(key[2:], uint64(idx))
	return key
}

// readSector returns the sector contents, zero-filled when absent.
func (d *Device) readSector(txn *badger.Txn, idx int64) ([]byte, error) {
	buf := make([]byte, d.sector)
	item, err := txn.Get(sectorKey(idx))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return buf, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		copy(buf, val)
		return nil
	})
	return buf, err
}

// span visits every sector overlapping [off, off+length), passing the sector
// index, the range within the sector, and the range within the caller's buffer.
func (d *Device) span(off, length int64, fn func(idx, sOff, sEnd, bOff int64) error) error {
	for pos := off; pos < off+length; {
		idx := pos / d.sector
		sOff := pos % d.sector
		n := min(d.sector-sOff, off+length-pos)
		if err := fn(idx, sOff, sOff+n, pos-off); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

func (d *Device) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}

	err := d.db.View(func(txn *badger.Txn) error {
		return d.span(off, int64(len(p)), func(idx, sOff, sEnd, bOff int64) error {
			data, err := d.readSector(txn, idx)
			if err != nil {
				return err
			}
			copy(p[bOff:], data[sOff:sEnd])
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("badger read: %w", err)
	}
	return len(p), nil
}

func (d *Device) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		return d.span(off, int64(len(p)), func(idx, sOff, sEnd, bOff int64) error {
			data, err := d.readSector(txn, idx)
			if err != nil {
				return err
			}
			copy(data[sOff:sEnd], p[bOff:])
			return txn.Set(sectorKey(idx), data)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("badger write: %w", err)
	}
	return len(p), nil
}

func (d *Device) Flush(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, 0, 0); err != nil {
		return err
	}
	return d.db.Sync()
}

// Discard deletes whole sectors and zeroes partial ones.
func (d *Device) Discard(ctx context.Context, off, length int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, length); err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		return d.span(off, length, func(idx, sOff, sEnd, _ int64) error {
			if sOff == 0 && sEnd == d.sector {
				return txn.Delete(sectorKey(idx))
			}
			data, err := d.readSector(txn, idx)
			if err != nil {
				return err
			}
			clear(data[sOff:sEnd])
			return txn.Set(sectorKey(idx), data)
		})
	})
}

// Close closes the database and releases the directory lock.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	d.closed = true
	return d.db.Close()
}

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
