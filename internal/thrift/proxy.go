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

package thrift

import (
	"context"
	"net"
	"time"

	"github.com/sabouaram/monoproxy/internal/cachepool"
)

// Proxy is the ThriftProxy layer (spec.md §4.10's Thrift stack's
// innermost layer): it forwards one decoded frame to a pooled upstream
// Thrift connection and returns its response frame, pooling the
// connection for reuse on success.
type Proxy struct {
	pool   *cachepool.Pool[string, net.Conn]
	addr   string
	dialTO time.Duration
}

// NewProxy builds a Proxy targeting addr.
func NewProxy(addr string, idleTTL time.Duration, capacity int, dialTimeout time.Duration) *Proxy {
	return &Proxy{
		pool:   cachepool.New[string, net.Conn](idleTTL, capacity),
		addr:   addr,
		dialTO: dialTimeout,
	}
}

// NewProxyFrom builds a Proxy inheriting old's pool when its settings
// match, mirroring the HTTP upstream client's hot-swap pool-transfer
// rule.
func NewProxyFrom(addr string, idleTTL time.Duration, capacity int, dialTimeout time.Duration, old *Proxy) *Proxy {
	p := &Proxy{addr: addr, dialTO: dialTimeout}
	if old != nil && old.pool.CompatibleWith(idleTTL, capacity) {
		p.pool = old.pool
	} else {
		p.pool = cachepool.New[string, net.Conn](idleTTL, capacity)
	}
	return p
}

// Handle implements Handler: forward req to a pooled or freshly dialed
// upstream connection and return its response. On any failure the
// borrowed connection is closed rather than returned to the pool,
// clearing its reuse flag as spec.md §4.12 requires.
func (p *Proxy) Handle(req []byte) ([]byte, error) {
	conn, err := p.acquire()
	if err != nil {
		return nil, err
	}

	if err := WriteFrame(conn, req); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	p.pool.Put(p.addr, conn)
	return resp, nil
}

func (p *Proxy) acquire() (net.Conn, error) {
	if conn, ok := p.pool.Get(p.addr); ok {
		return conn, nil
	}
	ctx := context.Background()
	if p.dialTO > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTO)
		defer cancel()
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", p.addr)
}

