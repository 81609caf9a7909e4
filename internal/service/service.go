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

// Package service defines the layered Service/Factory contract every site
// runs behind its ServiceSlot, generalized from the teacher library's
// httpserver.Server/Config pair. Each site kind is one Service built by
// one Factory (httpSite and thriftSite in chain.go); the PROXY-protocol
// peek, TLS termination, protocol detection, the HTTP or Thrift core,
// connection-reuse handling, routing and upstream dispatch run inside
// that Service, and its Factory can inherit state from the predecessor
// instance on hot reload.
package service

import (
	"context"
	"net"
)

// Service handles one accepted connection end to end.
type Service interface {
	Serve(ctx context.Context, conn net.Conn)
}

// Factory builds a Service, optionally inheriting state (pools, counters)
// from a prior instance of the same site. old is nil on first build or
// when PrepareAndCommit discards inheritance.
type Factory interface {
	Build(old Service) (Service, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(old Service) (Service, error)

func (f FactoryFunc) Build(old Service) (Service, error) { return f(old) }

// ListenerFactory builds the net.Listener for a site's address.
type ListenerFactory interface {
	Listen() (net.Listener, error)
}

// ListenerFactoryFunc adapts a plain function to ListenerFactory.
type ListenerFactoryFunc func() (net.Listener, error)

func (f ListenerFactoryFunc) Listen() (net.Listener, error) { return f() }
