// Package bus provides the bounded single-producer/single-consumer ring
// that carries events from feed workers to the distribution goroutine.
package bus

import (
	"errors"
	"sync/atomic"
)

var ErrCapacityNotPowerOfTwo = errors.New("ring capacity must be a power of two and >= 2")

type pad [56]byte

// Ring is a fixed-capacity lock-free queue for exactly one producer
// goroutine and one consumer goroutine. One slot is kept empty to
// distinguish full from empty, so a ring of capacity N holds N-1 items.
//
// The head and tail counters live on separate cache lines. Go's atomic
// loads and stores are sequentially consistent, which subsumes the
// acquire/release pairing the ring needs: the slot write always becomes
// visible before the tail update, and the slot read always completes
// before the head update.
type Ring[T any] struct {
	mask uint64
	buf  []T
	_    pad
	head atomic.Uint64 // consumer side
	_    pad
	tail atomic.Uint64 // producer side
	_    pad
}

// NewRing allocates a ring. Capacity must be a power of two, at least 2.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacityNotPowerOfTwo
	}
	return &Ring[T]{
		mask: uint64(capacity - 1),
		buf:  make([]T, capacity),
	}, nil
}

// Push enqueues an item. Returns false, leaving the ring unchanged, when
// the ring is full. Must only be called from the producer goroutine.
func (r *Ring[T]) Push(item T) bool {
	tail := r.tail.Load()
	next := (tail + 1) & r.mask
	if next == r.head.Load() {
		return false
	}
	r.buf[tail] = item
	r.tail.Store(next)
	return true
}

// Pop dequeues the oldest item. Returns false when the ring is empty.
// Must only be called from the consumer goroutine.
func (r *Ring[T]) Pop() (T, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		var zero T
		return zero, false
	}
	item := r.buf[head]
	r.head.Store((head + 1) & r.mask)
	return item, true
}

// Len reports the number of queued items. Best-effort under concurrent
// mutation; not a linearizable snapshot.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int((tail - head) & r.mask)
}

// Empty reports whether the ring looks empty. Best-effort.
func (r *Ring[T]) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

// Full reports whether the ring looks full. Best-effort.
func (r *Ring[T]) Full() bool {
	tail := r.tail.Load()
	return (tail+1)&r.mask == r.head.Load()
}

// Cap returns the number of usable slots (allocated capacity minus one).
func (r *Ring[T]) Cap() int {
	return int(r.mask)
}
