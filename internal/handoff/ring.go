package handoff

import (
	"fmt"
	"sync"
)

// Ring is a bounded FIFO that drops the oldest value when full.
type Ring[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int // index of the oldest value
	count   int
	dropped uint64
	closed  bool
}

// NewRing creates a ring holding at most capacity values.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring capacity must be at least 1, got %d", capacity)
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Capacity returns the maximum number of held values.
func (r *Ring[T]) Capacity() int {
	return len(r.buf)
}

// Push appends v, evicting the oldest value if the ring is full. Never blocks.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.count == len(r.buf) {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		r.dropped++
	}

	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = v
	r.count++
}

// DrainLatest returns the newest value and empties the ring.
// Older values are consumed, not counted as drops.
func (r *Ring[T]) DrainLatest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	newest := r.buf[(r.head+r.count-1)%len(r.buf)]
	r.dropped += uint64(r.count - 1)
	r.resetLocked()
	return newest, true
}

// PopAll returns all held values, oldest first, and empties the ring.
func (r *Ring[T]) PopAll() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.resetLocked()
	return out
}

func (r *Ring[T]) resetLocked() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

// Len returns the number of held values.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns the number of values evicted by overflow or skipped by DrainLatest.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear empties the ring.
func (r *Ring[T]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.count
	r.resetLocked()
	return n
}

// Close rejects further pushes. Idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
