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

// Package site holds the worker-local registry of SiteEntry values,
// generalizing the teacher library's PoolServer (Add/Get/Del/Has/Len over
// named httpserver.Server instances) to the gateway's committed/staged
// pair per name.
package site

import (
	"context"
	"net"
	"sync"

	"github.com/sabouaram/monoproxy/internal/metrics"
	"github.com/sabouaram/monoproxy/internal/service"
	"github.com/sabouaram/monoproxy/internal/slot"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

// Entry is one named site's runtime state: the live (committed) service
// behind a Slot, an optional staged service awaiting Update, and the
// cancel func that tears down its accept loop.
type Entry struct {
	Name     string
	Listener net.Listener
	Slot     *slot.Slot[service.Service]
	Staged   service.Service

	cancel context.CancelFunc
	done   chan struct{}
}

// Committed reports whether a live service is installed.
func (e *Entry) Committed() bool {
	return e.Slot != nil && !e.Slot.Empty()
}

// StagedPresent reports whether a staged service is waiting for Update.
func (e *Entry) StagedPresent() bool {
	return e.Staged != nil
}

// Stop cancels the accept loop and closes its listener, then waits for
// the loop to exit. Closing the listener is what actually releases the
// bound port and unblocks a goroutine parked in Listener.Accept() — ctx
// cancellation alone never reaches it. In-flight connections are not
// interrupted.
func (e *Entry) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.Listener != nil {
		e.Listener.Close()
	}
	if e.done != nil {
		<-e.done
	}
}

// Registry is the single-owner, never-shared-across-threads map of site
// name to Entry a worker drives from its own command-handling loop.
//
// Mutation always happens from one goroutine (the worker loop), but the
// mutex guards reads from the CLI status surface, which inspects a
// running fleet from outside the worker.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*Entry)}
}

func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[name]
	return e, ok
}

func (r *Registry) Put(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[e.Name] = e
}

func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, name)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// List returns the names of every site currently registered.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	return out
}

// Accept runs the accept-and-serve loop (C5) for e until ctx is
// cancelled. Each accepted connection clones the service snapshot
// observed at accept time and is served in its own goroutine, so a later
// hot-swap never changes the behavior of connections already in flight.
func Accept(ctx context.Context, e *Entry, log xlog.Logger) {
	defer close(e.done)

	for {
		type acceptResult struct {
			conn net.Conn
			err  error
		}
		accepted := make(chan acceptResult, 1)
		go func() {
			c, err := e.Listener.Accept()
			accepted <- acceptResult{c, err}
		}()

		select {
		case <-ctx.Done():
			return
		case r := <-accepted:
			if r.err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				log.WithError(r.err).WithField("site", e.Name).Warn("accept failed")
				continue
			}
			svc := e.Slot.Load()
			if svc == nil {
				r.conn.Close()
				continue
			}
			s := *svc
			metrics.ConnectionsAccepted.WithLabelValues(e.Name).Inc()
			metrics.ConnectionsActive.WithLabelValues(e.Name).Inc()
			go func(conn net.Conn) {
				defer metrics.ConnectionsActive.WithLabelValues(e.Name).Dec()
				s.Serve(ctx, conn)
			}(r.conn)
		}
	}
}

// NewEntry constructs an Entry with its accept loop parented to parent,
// immediately spawning Accept in the background. The Slot is seeded with
// svc before Accept starts; Accept still drops a connection if it ever
// finds the slot empty.
func NewEntry(parent context.Context, name string, ln net.Listener, svc service.Service, log xlog.Logger) *Entry {
	ctx, cancel := context.WithCancel(parent)
	e := &Entry{
		Name:     name,
		Listener: ln,
		Slot:     slot.New[service.Service](&svc),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go Accept(ctx, e, log)
	return e
}
