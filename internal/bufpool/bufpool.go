// Package bufpool provides pooled transfer buffers for data requests
// dispatched through relays.
//
// Buffers come in power-of-two classes from MinClass up to MaxClass.
// Requests above MaxClass are allocated directly and dropped on Put.
package bufpool

import (
	"math/bits"
	"sync"
)

const (
	// MinClass is the smallest pooled buffer (one 4 KiB block).
	MinClass = 4 << 10

	// MaxClass is the largest pooled buffer.
	MaxClass = 4 << 20

	minShift = 12
	maxShift = 22
)

// Pool is a set of sync.Pools, one per size class.
type Pool struct {
	classes [maxShift - minShift + 1]sync.Pool
}

// New creates an empty pool.
func New() *Pool {
	p := &Pool{}
	for i := range p.classes {
		size := MinClass << i
		p.classes[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// class returns the class index holding n bytes, or -1 when n exceeds
// MaxClass.
func class(n int) int {
	if n <= MinClass {
		return 0
	}
	if n > MaxClass {
		return -1
	}
	return bits.Len(uint(n-1)) - minShift
}

// Get returns a slice of length n. Its contents are undefined.
func (p *Pool) Get(n int) []byte {
	c := class(n)
	if c < 0 {
		return make([]byte, n)
	}
	buf := *p.classes[c].Get().(*[]byte)
	return buf[:n]
}

// Put returns buf to its class. Slices that did not come from Get are
// ignored.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	if c < MinClass || c > MaxClass || c&(c-1) != 0 {
		return
	}
	full := buf[:c]
	p.classes[class(c)].Put(&full)
}

var global = New()

// Get returns a buffer of length n from the package pool.
func Get(n int) []byte { return global.Get(n) }

// Put returns a buffer to the package pool.
func Put(buf []byte) { global.Put(buf) }
