package audio

import "sync"

// Allocator hands out payload buffers for decoded units and takes them back
// when the unit is released.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
}

// BufferPool is an Allocator backed by sync.Pool so that steady-state decode
// does not allocate per unit. Buffers of any size share the pool; a pooled
// buffer too small for a request is dropped and replaced.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool whose fresh buffers have at least minCap capacity.
func NewBufferPool(minCap int) *BufferPool {
	p := &BufferPool{}
	p.pool.New = func() interface{} {
		buf := make([]byte, 0, minCap)
		return &buf
	}
	return p
}

// Alloc returns a buffer of length n.
func (p *BufferPool) Alloc(n int) []byte {
	bp := p.pool.Get().(*[]byte)
	if cap(*bp) < n {
		return make([]byte, n)
	}
	return (*bp)[:n]
}

// Free returns b to the pool. b must not be used afterwards.
func (p *BufferPool) Free(b []byte) {
	if b == nil {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
