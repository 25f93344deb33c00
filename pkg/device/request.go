package device

import (
	"context"
	"fmt"
)

// Op is a block request operation.
type Op string

const (
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpFlush   Op = "flush"
	OpDiscard Op = "discard"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	switch op {
	case OpRead, OpWrite, OpFlush, OpDiscard:
		return true
	}
	return false
}

// Request is one I/O request routed through a relay.
//
// For reads, Data must be Length bytes long and receives the result. For
// writes, Data holds the payload and Length must equal len(Data). Flush
// ignores Offset and Length.
type Request struct {
	Op     Op
	Offset int64
	Length int64
	Data   []byte
}

// Validate checks the request shape. It does not check device bounds.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if !r.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidRequest, r.Op)
	}
	if r.Offset < 0 || r.Length < 0 {
		return fmt.Errorf("%w: negative offset or length", ErrInvalidRequest)
	}
	switch r.Op {
	case OpRead, OpWrite:
		if int64(len(r.Data)) != r.Length {
			return fmt.Errorf("%w: data length %d does not match length %d", ErrInvalidRequest, len(r.Data), r.Length)
		}
	}
	return nil
}

// Submit executes req against dev. The request offset is used as-is.
func Submit(ctx context.Context, dev Device, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch req.Op {
	case OpRead:
		n, err := dev.ReadAt(ctx, req.Data, req.Offset)
		if err != nil {
			return err
		}
		if int64(n) != req.Length {
			return fmt.Errorf("short read: %d of %d bytes", n, req.Length)
		}
	case OpWrite:
		n, err := dev.WriteAt(ctx, req.Data, req.Offset)
		if err != nil {
			return err
		}
		if int64(n) != req.Length {
			return fmt.Errorf("short write: %d of %d bytes", n, req.Length)
		}
	case OpFlush:
		return dev.Flush(ctx)
	case OpDiscard:
		return dev.Discard(ctx, req.Offset, req.Length)
	}
	return nil
}
