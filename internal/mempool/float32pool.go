// Package mempool recycles float32 tensor buffers between inference calls.
package mempool

import (
	"sync"
	"sync/atomic"
)

// step is the size-class granularity in elements.
const step = 1024

var (
	pools  sync.Map // size class (int) -> *sync.Pool
	gets   atomic.Int64
	puts   atomic.Int64
	allocs atomic.Int64
)

// Stats reports pool activity since process start.
type Stats struct {
	Gets        int64 `json:"gets"`
	Puts        int64 `json:"puts"`
	Allocations int64 `json:"allocations"`
}

// CurrentStats returns a snapshot of pool counters.
func CurrentStats() Stats {
	return Stats{Gets: gets.Load(), Puts: puts.Load(), Allocations: allocs.Load()}
}

// sizeClass rounds n up to the next multiple of step, with step as the minimum.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	if p, ok := pools.Load(cls); ok {
		return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		allocs.Add(1)
		return make([]float32, cls)
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
// Return it with PutFloat32 once no tensor references it.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	gets.Add(1)
	cls := sizeClass(n)
	buf, ok := poolFor(cls).Get().([]float32)
	if !ok || cap(buf) < cls {
		allocs.Add(1)
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer to its pool. Nil and undersized buffers are dropped.
func PutFloat32(buf []float32) {
	if cap(buf) < step {
		return
	}
	// floor so a pooled buffer always satisfies its class
	cls := cap(buf) / step * step
	puts.Add(1)
	poolFor(cls).Put(buf[:cls]) //nolint:staticcheck // slices are small headers
}
