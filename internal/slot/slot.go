/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package slot generalizes the teacher library's atomic.Value wrapper into
// a typed, in-place-replaceable handle. A Slot is cheap to clone (it is a
// pointer to a single atomic.Pointer) and reading it yields a snapshot that
// outlives concurrent swaps: the previous pointee is only garbage collected
// once every holder of the old snapshot has let go of it.
package slot

import "sync/atomic"

// Slot holds a reference-counted-by-the-GC pointer to a T, swappable
// without invalidating readers that already captured a snapshot.
type Slot[T any] struct {
	p atomic.Pointer[T]
}

// New creates a slot, optionally seeded with an initial value.
func New[T any](initial *T) *Slot[T] {
	s := &Slot[T]{}
	if initial != nil {
		s.p.Store(initial)
	}
	return s
}

// Load returns the current snapshot, or nil if the slot was never set.
func (s *Slot[T]) Load() *T {
	return s.p.Load()
}

// Store installs a new value. In-flight readers holding a previous Load()
// result are unaffected; they keep using the pointee they already have.
func (s *Slot[T]) Store(v *T) {
	s.p.Store(v)
}

// Swap installs v and returns what was there before.
func (s *Slot[T]) Swap(v *T) *T {
	return s.p.Swap(v)
}

// Empty reports whether the slot has never been populated.
func (s *Slot[T]) Empty() bool {
	return s.p.Load() == nil
}
