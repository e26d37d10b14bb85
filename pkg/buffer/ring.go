package buffer

import "fmt"

// Ring is a fixed-capacity FIFO of samples. It is not safe for concurrent
// use; each ring belongs to a single stage.
//
// Invariants: 0 <= length <= capacity and 0 <= head < capacity. The oldest
// sample lives at head; the next write lands at (head+length) % capacity.
type Ring[T any] struct {
	data   []T
	head   int
	length int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic(fmt.Errorf("ring capacity must be positive, got %d", capacity))
	}
	return &Ring[T]{data: make([]T, capacity)}
}

func (r *Ring[T]) Len() int  { return r.length }
func (r *Ring[T]) Cap() int  { return len(r.data) }
func (r *Ring[T]) Free() int { return len(r.data) - r.length }

// Reset discards everything buffered.
func (r *Ring[T]) Reset() {
	r.head = 0
	r.length = 0
}

// Write appends as much of p as fits and returns the count written.
func (r *Ring[T]) Write(p []T) int {
	n := len(p)
	if free := r.Free(); n > free {
		n = free
	}

	tail := (r.head + r.length) % len(r.data)
	first := copy(r.data[tail:], p[:n])
	copy(r.data, p[first:n])

	r.length += n
	r.check()
	return n
}

// Read removes up to len(p) of the oldest samples into p.
func (r *Ring[T]) Read(p []T) int {
	n := r.Peek(p)
	r.Discard(n)
	return n
}

// Peek copies up to len(p) of the oldest samples into p without consuming
// them.
func (r *Ring[T]) Peek(p []T) int {
	n := len(p)
	if n > r.length {
		n = r.length
	}

	end := r.head + n
	if end <= len(r.data) {
		copy(p, r.data[r.head:end])
	} else {
		first := copy(p, r.data[r.head:])
		copy(p[first:n], r.data[:end-len(r.data)])
	}
	return n
}

// Discard drops up to n of the oldest samples and returns the count dropped.
func (r *Ring[T]) Discard(n int) int {
	if n > r.length {
		n = r.length
	}
	r.head = (r.head + n) % len(r.data)
	r.length -= n
	if r.length == 0 {
		r.head = 0
	}
	r.check()
	return n
}

func (r *Ring[T]) check() {
	if r.length < 0 || r.length > len(r.data) || r.head < 0 || r.head >= len(r.data) {
		panic(fmt.Errorf("ring invariant broken: head=%d len=%d cap=%d", r.head, r.length, len(r.data)))
	}
}
