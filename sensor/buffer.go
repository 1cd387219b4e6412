// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import (
	"iter"
	"sync"
)

// DefaultCapacity is the capacity used when a buffer is created with a
// non-positive capacity.
const DefaultCapacity = 1000

// RollingBuffer is a fixed-capacity FIFO that evicts its oldest item on
// overflow. It is safe for concurrent use; readers always receive copies.
type RollingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // index of the oldest item
	size  int
}

// NewRollingBuffer creates a buffer holding at most capacity items.
func NewRollingBuffer[T any](capacity int) *RollingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RollingBuffer[T]{items: make([]T, capacity)}
}

// Push appends an item, evicting the oldest if the buffer is full.
func (b *RollingBuffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = v
		b.size++
		return
	}

	b.items[b.head] = v
	b.head = (b.head + 1) % capacity
}

// Latest returns a copy of the last n items in arrival order. If fewer than n
// items are held, all of them are returned.
func (b *RollingBuffer[T]) Latest(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	start := b.head + b.size - n
	for i := range out {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}

// All returns a copy of every held item in arrival order.
func (b *RollingBuffer[T]) All() []T {
	return b.Latest(b.Len())
}

// Items iterates over a snapshot of the held items in arrival order.
func (b *RollingBuffer[T]) Items() iter.Seq[T] {
	snapshot := b.All()
	return func(yield func(T) bool) {
		for _, v := range snapshot {
			if !yield(v) {
				return
			}
		}
	}
}

// Clear empties the buffer and returns the number of items removed.
func (b *RollingBuffer[T]) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	clear(b.items)
	b.head, b.size = 0, 0
	return n
}

// Len returns the number of held items.
func (b *RollingBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *RollingBuffer[T]) Cap() int {
	return len(b.items)
}
