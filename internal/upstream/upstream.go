/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package upstream is the pooled backend connector, adapted from the
// teacher library's httpcli.Request/FctHttpClient pattern (a function
// that hands back a configured *http.Client) down to the gateway's
// narrower need: one connect-key-keyed pool of reusable connections per
// site. Do writes each request with http.Request.Write and reads the reply
// with http.ReadResponse on a pooled connection; there is no
// http.RoundTripper or *http.Client involved.
package upstream

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sabouaram/monoproxy/internal/cachepool"
	"github.com/sabouaram/monoproxy/internal/metrics"
	"github.com/sabouaram/monoproxy/internal/reqctx"
	"github.com/sabouaram/monoproxy/internal/router"
	"github.com/sabouaram/monoproxy/internal/xerr"
)

// pooledConn is one idle backend connection plus the bufio.Reader used to
// read its responses.
type pooledConn struct {
	net.Conn
	br *bufio.Reader
}

func (p *pooledConn) Close() error { return p.Conn.Close() }

// Client is a pooled HTTP/1.1 upstream connector. Per spec.md §4.9, it
// owns two sub-connectors (plain TCP and TLS-over-TCP); this type
// multiplexes both behind one pool keyed by the connect-key.
type Client struct {
	pool           *cachepool.Pool[string, *pooledConn]
	connectTimeout time.Duration
	tlsConfig      *tls.Config
	site           string
}

// Options configures a new Client.
type Options struct {
	ConnectTimeout time.Duration
	PoolIdleTTL    time.Duration
	PoolCapacity   int
	TLSConfig      *tls.Config
	SiteName       string
}

// New builds a Client with a fresh pool.
func New(opt Options) *Client {
	return &Client{
		pool:           cachepool.New[string, *pooledConn](opt.PoolIdleTTL, opt.PoolCapacity),
		connectTimeout: opt.ConnectTimeout,
		tlsConfig:      opt.TLSConfig,
		site:           opt.SiteName,
	}
}

// NewFrom builds a Client inheriting old's pool when the settings match
// (spec.md §4.9/§3's hot-swap pool-transfer rule); otherwise a fresh pool
// is created. State transfer never fails the build.
func NewFrom(opt Options, old *Client) *Client {
	c := &Client{connectTimeout: opt.ConnectTimeout, tlsConfig: opt.TLSConfig, site: opt.SiteName}
	if old != nil && old.pool.CompatibleWith(opt.PoolIdleTTL, opt.PoolCapacity) {
		c.pool = old.pool
	} else {
		c.pool = cachepool.New[string, *pooledConn](opt.PoolIdleTTL, opt.PoolCapacity)
	}
	return c
}

// connectKey resolves ep to the (host, port[, tls]) string the pool is
// keyed on. Resolution errors map to the caller's 400 per spec.md §4.9.
func connectKey(ep router.Endpoint) (key string, dialAddr string, useTLS bool, err error) {
	switch ep.Kind {
	case router.EndpointSocket:
		return "tcp:" + ep.Address, ep.Address, false, nil
	case router.EndpointUnix:
		return "unix:" + ep.Address, ep.Address, false, nil
	case router.EndpointURI:
		u, parseErr := parseAuthority(ep.Address)
		if parseErr != nil {
			return "", "", false, xerr.Wrap(xerr.CodeRequestURI, "resolve upstream uri", parseErr)
		}
		return u.key, u.addr, u.tls, nil
	default:
		return "", "", false, xerr.New(xerr.CodeRequestURI, "unknown endpoint kind")
	}
}

type authority struct {
	key  string
	addr string
	tls  bool
}

func parseAuthority(raw string) (authority, error) {
	scheme, rest, ok := splitScheme(raw)
	if !ok {
		return authority{}, fmt.Errorf("upstream: missing scheme in %q", raw)
	}
	host := rest
	if i := indexByte(rest, '/'); i >= 0 {
		host = rest[:i]
	}
	useTLS := scheme == "https"
	addr := host
	if indexByte(host, ':') < 0 {
		if useTLS {
			addr = host + ":443"
		} else {
			addr = host + ":80"
		}
	}
	return authority{key: scheme + "://" + addr, addr: addr, tls: useTLS}, nil
}

func splitScheme(raw string) (scheme, rest string, ok bool) {
	for i := 0; i < len(raw)-2; i++ {
		if raw[i] == ':' && raw[i+1] == '/' && raw[i+2] == '/' {
			return raw[:i], raw[i+3:], true
		}
	}
	return "", raw, false
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Do resolves req's target endpoint, borrows or dials a connection, adds
// the Forwarded header, sends the request and returns the response. Error
// mapping follows spec.md §4.9: resolution errors are 400, connect
// failures are 502, I/O failures on an established connection are 502.
func (c *Client) Do(ctx context.Context, ep router.Endpoint, req *http.Request, bag *reqctx.Bag) (*http.Response, error) {
	key, addr, useTLS, err := connectKey(ep)
	if err != nil {
		return nil, err
	}

	addForwarded(req, bag)

	conn, fromPool, err := c.acquire(ctx, key, addr, useTLS)
	if err != nil {
		return nil, xerr.Wrap(xerr.CodeUpstream, "connect upstream", err)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		if fromPool {
			// A pooled connection may have been closed by the peer between
			// Put and this Do; retry once against a fresh dial.
			return c.retryFresh(ctx, key, addr, useTLS, req)
		}
		return nil, xerr.Wrap(xerr.CodeUpstream, "write upstream request", err)
	}

	resp, err := http.ReadResponse(conn.br, req)
	if err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.CodeUpstream, "read upstream response", err)
	}

	if resp.Close {
		// Upstream asked us not to reuse the connection.
		return resp, nil
	}
	c.pool.Put(key, conn)
	metrics.UpstreamPoolSize.WithLabelValues(c.site, key).Set(float64(c.pool.Len(key)))
	return resp, nil
}

func (c *Client) retryFresh(ctx context.Context, key, addr string, useTLS bool, req *http.Request) (*http.Response, error) {
	conn, err := c.dial(ctx, addr, useTLS)
	if err != nil {
		return nil, xerr.Wrap(xerr.CodeUpstream, "reconnect upstream", err)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.CodeUpstream, "write upstream request", err)
	}
	resp, err := http.ReadResponse(conn.br, req)
	if err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.CodeUpstream, "read upstream response", err)
	}
	if !resp.Close {
		c.pool.Put(key, conn)
		metrics.UpstreamPoolSize.WithLabelValues(c.site, key).Set(float64(c.pool.Len(key)))
	}
	return resp, nil
}

func (c *Client) acquire(ctx context.Context, key, addr string, useTLS bool) (*pooledConn, bool, error) {
	if conn, ok := c.pool.Get(key); ok {
		return conn, true, nil
	}
	conn, err := c.dial(ctx, addr, useTLS)
	return conn, false, err
}

func (c *Client) dial(ctx context.Context, addr string, useTLS bool) (*pooledConn, error) {
	dialCtx := ctx
	cancel := func() {}
	if c.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
	}
	defer cancel()

	var d net.Dialer
	network := "tcp"
	if len(addr) > 0 && addr[0] == '/' {
		network = "unix"
	}

	conn, err := d.DialContext(dialCtx, network, addr)
	if err != nil {
		return nil, err
	}

	if useTLS {
		tc := tls.Client(conn, c.tlsConfig)
		if err := tc.HandshakeContext(dialCtx); err != nil {
			conn.Close()
			return nil, err
		}
		return &pooledConn{Conn: tc, br: bufio.NewReader(tc)}, nil
	}
	return &pooledConn{Conn: conn, br: bufio.NewReader(conn)}, nil
}

// addForwarded appends the client's real address to req's Forwarded
// header, preferring the PROXY-protocol-derived RemoteAddr over the
// socket-accepted PeerAddr (spec.md §4.9).
func addForwarded(req *http.Request, bag *reqctx.Bag) {
	if bag == nil {
		return
	}
	addr := bag.ForwardedFor()
	if addr == nil {
		return
	}
	req.Header.Add("Forwarded", "for=\""+addr.String()+"\"")
}

// CloseIdle closes every idle pooled connection. The worker's Remove
// handling does not call it.
func (c *Client) CloseIdle() {
	c.pool.CloseAll()
}
