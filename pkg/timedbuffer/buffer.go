// Package timedbuffer provides a bounded, insertion-ordered history with
// constant-time append and oldest-first eviction.
package timedbuffer

import "time"

// Buffer is a fixed-capacity ring of items. It is not safe for concurrent use;
// callers that share a Buffer across goroutines must guard it themselves.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
	total int64

	key    func(T) time.Time
	dedupe bool
	now    func() time.Time
}

// Option configures a Buffer.
type Option[T any] func(*Buffer[T])

// WithKey sets the ordering key used by ForPeriod and duplicate detection.
func WithKey[T any](key func(T) time.Time) Option[T] {
	return func(b *Buffer[T]) { b.key = key }
}

// WithDedupe rejects an item whose key equals the newest item's key.
// It has no effect without WithKey.
func WithDedupe[T any]() Option[T] {
	return func(b *Buffer[T]) { b.dedupe = true }
}

// WithClock overrides the time source used by ForPeriod.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(b *Buffer[T]) { b.now = now }
}

// New creates a Buffer holding at most capacity items. A capacity below one is raised to one.
func New[T any](capacity int, opts ...Option[T]) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{
		items: make([]T, capacity),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends item, evicting the oldest item when the buffer is full.
// It returns false if the item was rejected as a duplicate.
func (b *Buffer[T]) Add(item T) bool {
	if b.dedupe && b.key != nil && b.size > 0 {
		if last, _ := b.Last(); b.key(last).Equal(b.key(item)) {
			return false
		}
	}

	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = item
		b.size++
	} else {
		b.items[b.head] = item
		b.head = (b.head + 1) % len(b.items)
	}
	b.total++
	return true
}

// Count returns the number of items currently held.
func (b *Buffer[T]) Count() int { return b.size }

// TotalCount returns how many items were ever accepted, including evicted ones.
func (b *Buffer[T]) TotalCount() int64 { return b.total }

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Last returns the newest item.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.at(b.size - 1), true
}

// LastN returns up to n newest items, oldest first.
func (b *Buffer[T]) LastN(n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > b.size {
		n = b.size
	}
	out := make([]T, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.at(i))
	}
	return out
}

// ForPeriod returns the items whose key falls within d of now, oldest first.
// Without a key every item is returned.
func (b *Buffer[T]) ForPeriod(d time.Duration) []T {
	if b.key == nil {
		return b.All()
	}
	cutoff := b.now().Add(-d)
	// keys are non-decreasing in insertion order, so scan back from the newest
	start := b.size
	for start > 0 && !b.key(b.at(start-1)).Before(cutoff) {
		start--
	}
	out := make([]T, 0, b.size-start)
	for i := start; i < b.size; i++ {
		out = append(out, b.at(i))
	}
	return out
}

// All returns every held item, oldest first.
func (b *Buffer[T]) All() []T {
	return b.LastN(b.size)
}

// Reset drops every item. TotalCount is preserved.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}

func (b *Buffer[T]) at(i int) T {
	return b.items[(b.head+i)%len(b.items)]
}
