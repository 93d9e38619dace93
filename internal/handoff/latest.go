package handoff

import (
	"context"
	"sync"
)

// Latest is a single-slot overwrite mailbox.
//
// Push replaces an unconsumed value (counting a drop) and signals waiters.
// Consumers either poll DrainLatest on their own cadence or block in Wait.
type Latest[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	value   T
	full    bool
	dropped uint64
	closed  bool
}

// NewLatest creates an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	l := &Latest[T]{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Push overwrites the slot. Never blocks.
func (l *Latest[T]) Push(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.full {
		l.dropped++
	}
	l.value = v
	l.full = true
	l.cond.Signal()
}

// DrainLatest takes the slot's value if there is one.
func (l *Latest[T]) DrainLatest() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.takeLocked()
}

func (l *Latest[T]) takeLocked() (T, bool) {
	var zero T
	if !l.full {
		return zero, false
	}
	v := l.value
	l.value = zero
	l.full = false
	return v, true
}

// Wait blocks until a value is available, the mailbox is closed, or ctx is done.
// Returns false when no value was taken.
func (l *Latest[T]) Wait(ctx context.Context) (T, bool) {
	// sync.Cond cannot select on ctx, so wake waiters when it is cancelled
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.full && !l.closed && ctx.Err() == nil {
		l.cond.Wait()
	}
	return l.takeLocked()
}

// PopAll returns the held value, if any, as a one-element slice.
func (l *Latest[T]) PopAll() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.takeLocked()
	if !ok {
		return nil
	}
	return []T{v}
}

// Len returns 1 when a value is waiting, else 0.
func (l *Latest[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return 1
	}
	return 0
}

// Dropped returns the number of overwritten, never-consumed values.
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Clear empties the slot.
func (l *Latest[T]) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.takeLocked()
	if ok {
		return 1
	}
	return 0
}

// Close rejects further pushes and wakes any waiter. Idempotent.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
}
