/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

// Package cachepool is a generic, per-key LIFO store of idle, reusable
// entries, adapted from the teacher library's cache package (itself a
// generic any-keyed store) down to the one shape the upstream client needs:
// a stack per (endpoint, protocol) key with an optional idle timeout and a
// cheap whole-pool transfer on hot reload.
package cachepool

import (
	"sync"
	"time"
)

// Closer is implemented by pooled entries that own a resource.
type Closer interface {
	Close() error
}

type stack[V Closer] struct {
	mu    sync.Mutex
	items []entry[V]
}

type entry[V Closer] struct {
	val V
	at  time.Time
}

// Pool is a LIFO idle-connection store keyed by K (typically an endpoint+
// protocol pair), generic over the pooled value type V.
type Pool[K comparable, V Closer] struct {
	mu       sync.Mutex
	byKey    map[K]*stack[V]
	idleTTL  time.Duration
	capacity int
}

// New builds an empty pool. idleTTL of zero disables idle expiry. capacity
// of zero means unbounded per-key depth.
func New[K comparable, V Closer](idleTTL time.Duration, capacity int) *Pool[K, V] {
	return &Pool[K, V]{
		byKey:    make(map[K]*stack[V]),
		idleTTL:  idleTTL,
		capacity: capacity,
	}
}

func (p *Pool[K, V]) stackFor(key K) *stack[V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byKey[key]
	if !ok {
		s = &stack[V]{}
		p.byKey[key] = s
	}
	return s
}

// Get pops the most recently returned live entry for key, discarding any
// that exceeded idleTTL while sitting in the stack. Returns the zero value
// and false when nothing reusable is available.
func (p *Pool[K, V]) Get(key K) (V, bool) {
	s := p.stackFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.items) > 0 {
		last := len(s.items) - 1
		e := s.items[last]
		s.items = s.items[:last]

		if p.idleTTL > 0 && time.Since(e.at) > p.idleTTL {
			_ = e.val.Close()
			continue
		}
		return e.val, true
	}

	var zero V
	return zero, false
}

// Put pushes a reusable entry back onto key's stack. If the stack is at
// capacity, the oldest-pushed entry (the bottom, cheapest to evict without
// reshuffling the LIFO order) is closed to make room.
func (p *Pool[K, V]) Put(key K, v V) {
	s := p.stackFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.capacity > 0 && len(s.items) >= p.capacity {
		evicted := s.items[0]
		s.items = s.items[1:]
		_ = evicted.val.Close()
	}
	s.items = append(s.items, entry[V]{val: v, at: time.Now()})
}

// Len returns the number of idle entries currently held for key.
func (p *Pool[K, V]) Len(key K) int {
	s := p.stackFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// CloseAll drains and closes every idle entry across every key. It does not
// touch entries already borrowed by a caller.
func (p *Pool[K, V]) CloseAll() {
	p.mu.Lock()
	keys := make([]*stack[V], 0, len(p.byKey))
	for _, s := range p.byKey {
		keys = append(keys, s)
	}
	p.mu.Unlock()

	for _, s := range keys {
		s.mu.Lock()
		for _, e := range s.items {
			_ = e.val.Close()
		}
		s.items = nil
		s.mu.Unlock()
	}
}

// IdleTTL and Capacity expose the settings used to decide, on hot reload,
// whether a pool can be transferred by reference to a new upstream client
// instance (spec.md §3/§4.9: transfer when "protocol and timeout settings
// match", rebuild otherwise).
func (p *Pool[K, V]) IdleTTL() time.Duration { return p.idleTTL }
func (p *Pool[K, V]) Capacity() int          { return p.capacity }

// CompatibleWith reports whether other's settings match this pool's, the
// precondition for a zero-copy pool transfer on hot-swap.
func (p *Pool[K, V]) CompatibleWith(idleTTL time.Duration, capacity int) bool {
	return p.idleTTL == idleTTL && p.capacity == capacity
}
