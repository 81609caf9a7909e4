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

// Package reqctx implements the order-independent, type-indexed property
// bag carried by every request/stream, adapted from the teacher library's
// generic context map (a mutex-guarded map keyed by Key values instead of
// a single struct so handlers never need to agree on field order).
package reqctx

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// Key namespaces a bag entry. Using a distinct type (rather than string)
// keeps callers from colliding with keys defined outside this package.
type Key string

const (
	KeyPeerAddr   Key = "peer_addr"
	KeyRemoteAddr Key = "remote_addr"
	KeyRequestID  Key = "request_id"
)

// Bag is the per-request/per-stream property store. Its lifetime is a
// single HTTP/1 request or a single HTTP/2 stream; it is never reused
// across requests.
type Bag struct {
	mu sync.RWMutex
	m  map[Key]interface{}
}

// New creates a bag seeded with the accepted connection's address and a
// freshly minted request id.
func New(peer net.Addr) *Bag {
	b := &Bag{m: make(map[Key]interface{}, 4)}
	b.Set(KeyPeerAddr, peer)
	b.Set(KeyRequestID, uuid.NewString())
	return b
}

func (b *Bag) Set(k Key, v interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[k] = v
}

func (b *Bag) Get(k Key) (interface{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[k]
	return v, ok
}

// PeerAddr returns the socket-accepted address, always present.
func (b *Bag) PeerAddr() net.Addr {
	v, _ := b.Get(KeyPeerAddr)
	a, _ := v.(net.Addr)
	return a
}

// RemoteAddr returns the PROXY-protocol-derived address if one was parsed,
// else false.
func (b *Bag) RemoteAddr() (net.Addr, bool) {
	v, ok := b.Get(KeyRemoteAddr)
	if !ok {
		return nil, false
	}
	a, ok := v.(net.Addr)
	return a, ok
}

// ForwardedFor returns RemoteAddr when present, else PeerAddr — the
// preference order the upstream client's Forwarded header uses.
func (b *Bag) ForwardedFor() net.Addr {
	if a, ok := b.RemoteAddr(); ok {
		return a
	}
	return b.PeerAddr()
}

func (b *Bag) RequestID() string {
	v, _ := b.Get(KeyRequestID)
	s, _ := v.(string)
	return s
}
