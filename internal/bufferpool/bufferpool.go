// Package bufferpool is a thin sync.Pool wrapper so every back-end has a
// concrete, non-owning handle to borrow scratch buffers from instead of
// allocating one per receive-loop iteration.
package bufferpool

import "sync"

// Pool hands out []byte slices of a fixed capacity for scratch I/O buffers.
type Pool struct {
	size int
	pool sync.Pool
}

// New returns a Pool whose buffers have the given capacity.
func New(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		return make([]byte, size)
	}
	return p
}

// Get returns a buffer of the pool's fixed size.
func (p *Pool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	p.pool.Put(b[:p.size]) //nolint:staticcheck
}

// Size is the fixed buffer capacity this pool hands out.
func (p *Pool) Size() int { return p.size }
