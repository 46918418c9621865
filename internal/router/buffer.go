package router

import "sync"

// GrowableBuffer is a thread-safe FIFO that doubles its capacity when
// full, so a slow consumer never blocks the producer. Used between the
// dispatcher and event subscribers.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	count  int
	closed bool

	pushed  int64
	popped  int64
	resizes int
}

// BufferStats describes buffer activity.
type BufferStats struct {
	Depth   int
	Pushed  int64
	Popped  int64
	Resizes int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initial int) *GrowableBuffer[T] {
	if initial < 1 {
		initial = 1
	}
	b := &GrowableBuffer[T]{items: make([]T, initial)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues an item, growing the buffer if needed. Returns false if
// the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == len(b.items) {
		grown := make([]T, len(b.items)*2)
		for i := 0; i < b.count; i++ {
			grown[i] = b.items[(b.head+i)%len(b.items)]
		}
		b.items = grown
		b.head = 0
		b.resizes++
	}

	b.items[(b.head+b.count)%len(b.items)] = item
	b.count++
	b.pushed++
	b.cond.Signal()
	return true
}

// Receive dequeues the next item, blocking until one is available or
// the buffer is closed. The second return is false once the buffer is
// closed and drained.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.popped++
	return item, true
}

// TryReceive dequeues without blocking. The second return is false when
// the buffer is currently empty (closed or not).
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.count--
	b.popped++
	return item, true
}

// Len returns the number of buffered items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Close marks the buffer closed. Buffered items remain receivable;
// further sends are rejected. Idempotent.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Stats returns current counters.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Depth:   b.count,
		Pushed:  b.pushed,
		Popped:  b.popped,
		Resizes: b.resizes,
	}
}
