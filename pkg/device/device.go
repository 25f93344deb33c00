// Package device defines the block device abstraction a relay gates.
//
// A Provider attaches a device by endpoint identity and hands back a Device
// handle. Closing the handle detaches it. Backends live in sub-packages
// (memory, file, badger, s3).
package device

import (
	"context"
	"errors"
	"fmt"
)

// Acquire failure kinds. Backends wrap these so callers can classify with errors.Is.
var (
	// ErrNotFound is returned when the endpoint does not resolve to a device.
	ErrNotFound = errors.New("device not found")

	// ErrBusy is returned when the device exists but is held by someone else.
	ErrBusy = errors.New("device busy")

	// ErrClosed is returned by operations on a released handle.
	ErrClosed = errors.New("device handle closed")

	// ErrOutOfRange is returned when a request falls outside the device.
	ErrOutOfRange = errors.New("request out of device range")

	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// Device is an attached block device handle.
//
// Implementations must be safe for concurrent use. Close detaches the device;
// every other method returns ErrClosed afterwards.
type Device interface {
	// Name identifies the device for logs and status output.
	Name() string

	// Size returns the device capacity in bytes.
	Size() int64

	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// WriteAt writes p starting at off.
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)

	// Flush persists any buffered writes.
	Flush(ctx context.Context) error

	// Discard releases the byte range [off, off+length). Subsequent reads
	// of the range return zeros.
	Discard(ctx context.Context, off, length int64) error

	// Close releases the handle.
	Close() error
}

// Provider attaches devices by endpoint identity.
type Provider interface {
	// Acquire opens the device identified by endpoint. Errors wrap
	// ErrNotFound or ErrBusy where the cause is known.
	Acquire(ctx context.Context, endpoint string) (Device, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, endpoint string) (Device, error)

// Acquire calls f(ctx, endpoint).
func (f ProviderFunc) Acquire(ctx context.Context, endpoint string) (Device, error) {
	return f(ctx, endpoint)
}

// CheckRange validates that [off, off+length) lies within a device of the given size.
func CheckRange(size, off, length int64) error {
	if off < 0 || length < 0 {
		return fmt.Errorf("%w: negative offset or length", ErrInvalidRequest)
	}
	if off+length > size || off+length < off {
		return fmt.Errorf("%w: [%d, %d) exceeds size %d", ErrOutOfRange, off, off+length, size)
	}
	return nil
}
