// Package rt provides real-time-safe plumbing between the control path
// and the render thread.
package rt

import (
	"fmt"
	"sync/atomic"
)

// Queue is a bounded single-producer/single-consumer queue. Push and pop
// never block and never allocate, which makes the consumer side safe to
// call from the render thread. Exactly one goroutine may push and exactly
// one may pop.
type Queue[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot to pop
	tail atomic.Uint64 // next slot to push
}

// NewQueue returns a queue holding at least capacity elements.
// Capacity is rounded up to a power of two.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be > 0: %d", capacity)
	}

	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}

	return &Queue[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}, nil
}

// TryPush appends v and reports whether there was room.
func (q *Queue[T]) TryPush(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.buf)) {
		return false
	}

	q.buf[tail&q.mask] = v
	q.tail.Store(tail + 1)

	return true
}

// TryPop removes and returns the oldest element, reporting whether one
// was available.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}

	v := q.buf[head&q.mask]
	q.buf[head&q.mask] = zero
	q.head.Store(head + 1)

	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}
