package buffer

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a fixed-size block of samples owned by a Pool. It carries a
// reference count so one block can be read by several mailbox subscribers
// and goes back to its pool only after the last of them releases it.
type Buffer[T any] struct {
	Data []T
	// Len is the number of valid samples in Data.
	Len int
	// Seq is a producer-assigned sequence number.
	Seq int

	refs atomic.Int32
	pool *Pool[T]
}

// Samples returns the valid portion of the buffer.
func (b *Buffer[T]) Samples() []T {
	return b.Data[:b.Len]
}

// Retain adds n references.
func (b *Buffer[T]) Retain(n int32) {
	b.refs.Add(n)
}

// Release drops one reference and returns the buffer to its pool when none
// remain.
func (b *Buffer[T]) Release() {
	refs := b.refs.Add(-1)
	switch {
	case refs == 0:
		if b.pool != nil {
			b.pool.put(b)
		}
	case refs < 0:
		panic(fmt.Errorf("buffer released %d times too many", -refs))
	}
}

// Refs reports the current reference count.
func (b *Buffer[T]) Refs() int32 {
	return b.refs.Load()
}

// PoolStats counts pool traffic.
type PoolStats struct {
	Gets      int64
	Returns   int64
	Allocated int64
	Free      int
}

// Pool hands out buffers of one fixed size. Buffers are created up front and
// recycled so the sample path does not allocate once it is running; if the
// free list runs dry a new buffer is allocated and kept.
type Pool[T any] struct {
	size int
	free chan *Buffer[T]

	gets      atomic.Int64
	returns   atomic.Int64
	allocated atomic.Int64
}

// NewPool creates a pool holding up to capacity buffers of size samples
// each, count of which are allocated immediately.
func NewPool[T any](size, count, capacity int) *Pool[T] {
	if capacity < count {
		capacity = count
	}
	p := &Pool[T]{
		size: size,
		free: make(chan *Buffer[T], capacity),
	}
	for i := 0; i < count; i++ {
		p.free <- p.alloc()
	}
	return p
}

func (p *Pool[T]) alloc() *Buffer[T] {
	p.allocated.Add(1)
	return &Buffer[T]{
		Data: make([]T, p.size),
		pool: p,
	}
}

// Size is the sample capacity of every buffer in the pool.
func (p *Pool[T]) Size() int {
	return p.size
}

// Get returns a buffer holding one reference, owned by the caller.
func (p *Pool[T]) Get() *Buffer[T] {
	p.gets.Add(1)

	var b *Buffer[T]
	select {
	case b = <-p.free:
	default:
		b = p.alloc()
	}

	b.Len = len(b.Data)
	b.Seq = 0
	b.refs.Store(1)
	return b
}

func (p *Pool[T]) put(b *Buffer[T]) {
	p.returns.Add(1)
	select {
	case p.free <- b:
	default:
		// pool is full, let the collector have it
	}
}

func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:      p.gets.Load(),
		Returns:   p.returns.Load(),
		Allocated: p.allocated.Load(),
		Free:      len(p.free),
	}
}
