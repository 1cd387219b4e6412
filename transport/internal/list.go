// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"iter"
	"sync"
)

type listNode[T any] struct {
	value T
	prev  *listNode[T]
	next  *listNode[T]
}

// AppendableListWithRemoval is an ordered list where each appended entry can
// be removed through the function returned when it was appended. It backs the
// multi-subscriber notification lists.
type AppendableListWithRemoval[T any] struct {
	mu    sync.RWMutex
	first *listNode[T]
	last  *listNode[T]
	len   int
}

func NewAppendableListWithRemoval[T any]() *AppendableListWithRemoval[T] {
	return &AppendableListWithRemoval[T]{}
}

func (l *AppendableListWithRemoval[T]) AppendEntry(
	value T,
) (removeEntry func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := &listNode[T]{value: value}
	if l.last == nil {
		l.first = node
	} else {
		l.last.next = node
	}
	node.prev = l.last
	l.last = node
	l.len++

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if node == nil {
			// node was already deleted
			return
		}

		if node.prev == nil {
			l.first = node.next
		} else {
			node.prev.next = node.next
		}

		if node.next == nil {
			l.last = node.prev
		} else {
			node.next.prev = node.prev
		}
		l.len--

		// set this to nil so the node can be garbage collected
		node = nil
	}
}

// All iterates over a snapshot of the entries, so entries may remove
// themselves (or others) while being iterated.
func (l *AppendableListWithRemoval[T]) All() iter.Seq[T] {
	l.mu.RLock()
	values := make([]T, 0, l.len)
	for curr := l.first; curr != nil; curr = curr.next {
		values = append(values, curr.value)
	}
	l.mu.RUnlock()

	return func(yield func(T) bool) {
		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}
}

func (l *AppendableListWithRemoval[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.len
}
