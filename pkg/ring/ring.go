// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ring provides a bounded ring buffer that overwrites its oldest
// element when full.
package ring

// Buffer holds the most recent Cap() values pushed to it.
//
// Buffer is not safe for concurrent use; callers provide locking.
type Buffer[T any] struct {
	buf []T

	// wIndex is the slot the next Push writes.
	wIndex int

	// n is the number of valid elements, at most len(buf).
	n int

	// total counts every Push, including overwritten ones.
	total uint64
}

// New returns an empty Buffer holding up to capacity elements.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest element if the buffer is full. It
// returns true if an element was overwritten.
func (b *Buffer[T]) Push(v T) (overwrote bool) {
	b.buf[b.wIndex] = v
	b.wIndex = (b.wIndex + 1) % len(b.buf)
	b.total++
	if b.n == len(b.buf) {
		return true
	}
	b.n++
	return false
}

// Len returns the number of elements held.
func (b *Buffer[T]) Len() int {
	return b.n
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.buf)
}

// Total returns the number of elements ever pushed.
func (b *Buffer[T]) Total() uint64 {
	return b.total
}

// Do calls fn on each element from oldest to newest, stopping early if fn
// returns false.
func (b *Buffer[T]) Do(fn func(v T) bool) {
	start := b.wIndex - b.n
	if start < 0 {
		start += len(b.buf)
	}
	for i := 0; i < b.n; i++ {
		if !fn(b.buf[(start+i)%len(b.buf)]) {
			return
		}
	}
}

// Snapshot returns the elements from oldest to newest.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, 0, b.n)
	b.Do(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
