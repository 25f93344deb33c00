package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_SizeClasses(t *testing.T) {
	p := New()

	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Zero", 0, MinClass},
		{"Sector", 512, MinClass},
		{"ExactMin", MinClass, MinClass},
		{"JustAboveMin", MinClass + 1, 2 * MinClass},
		{"Mid", 100 << 10, 128 << 10},
		{"ExactMax", MaxClass, MaxClass},
		{"Oversized", MaxClass + 1, MaxClass + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := p.Get(tt.size)
			defer p.Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestPut_IgnoresForeignSlices(t *testing.T) {
	p := New()

	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 100))
		p.Put(make([]byte, 3*MinClass))
		p.Put(make([]byte, 2*MaxClass))
	})
}

func TestPool_Reuse(t *testing.T) {
	p := New()

	buf := p.Get(8 << 10)
	buf[0] = 0xAB
	p.Put(buf)

	again := p.Get(6 << 10)
	assert.Len(t, again, 6<<10)
	assert.Equal(t, 8<<10, cap(again))
}

func TestPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get(n)
				buf[len(buf)-1] = byte(j)
				Put(buf)
			}
		}((i + 1) * 1000)
	}
	wg.Wait()
}
