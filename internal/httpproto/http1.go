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

package httpproto

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sabouaram/monoproxy/internal/reqctx"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

// Handler produces the response for req, or an error that Serve1 maps to
// a synthesized status (500/502/404/400 per spec.md §7).
type Handler func(ctx context.Context, req *http.Request, bag *reqctx.Bag) (*http.Response, error)

// Timeouts1 are the HTTP/1 engine's three independently-applied waits
// (spec.md §4.4); a zero value means "no timeout".
type Timeouts1 struct {
	KeepaliveTimeout  time.Duration
	ReadHeaderTimeout time.Duration
	ReadBodyTimeout   time.Duration
	MaxKeepaliveReqs  int
}

// Serve1 runs the HTTP/1 per-connection loop: peek for the next request's
// first byte under KeepaliveTimeout (idle wait), then switch the read
// deadline to ReadHeaderTimeout before decoding the header itself, the
// same peek-then-switch shape internal/thrift/serve.go uses so the two
// waits stay independent instead of one SetReadDeadline silently
// overwriting the other. Then invoke handler, apply the connection-reuse
// table, write the response under ReadBodyTimeout, and loop while the
// decision allows it. The request body is drained after the handler
// returns and before the next header read, the Go-idiomatic stand-in for
// the teacher
// system's composite handler/payload-drain future: it keeps the next
// request's decode from having to wait on a handler that already
// finished but left body bytes unread.
func Serve1(ctx context.Context, conn net.Conn, br *bufio.Reader, peer net.Addr, to Timeouts1, handle Handler, log xlog.Logger) {
	defer conn.Close()

	reqCount := 0
	for {
		if to.KeepaliveTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(to.KeepaliveTimeout))
		}
		if _, err := br.Peek(1); err != nil {
			return
		}

		if to.ReadHeaderTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(to.ReadHeaderTimeout))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		req, err := http.ReadRequest(br)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("http1 decode failed, closing")
			}
			return
		}
		conn.SetReadDeadline(time.Time{})

		reqCount++
		req = req.WithContext(ctx)
		bag := reqctx.New(peer)

		connHeader := req.Header.Get("Connection")
		proto := req.Proto
		req.Header.Del("Connection")

		resp, herr := handle(ctx, req, bag)
		handlerContinue := herr == nil

		if herr != nil {
			resp = synthesizeError(req, herr)
		}
		attachRequestID(resp, bag)

		io.Copy(io.Discard, io.LimitReader(req.Body, 1<<20))
		req.Body.Close()

		decision := Decide(proto, connHeader, handlerContinue)
		if to.MaxKeepaliveReqs > 0 && reqCount >= to.MaxKeepaliveReqs {
			decision.Continue = false
			decision.AddCloseHeader = true
		}
		decision.Apply(resp)

		if to.ReadBodyTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(to.ReadBodyTimeout))
		}
		if err := resp.Write(conn); err != nil {
			return
		}
		conn.SetWriteDeadline(time.Time{})
		resp.Body.Close()

		if !decision.Continue {
			return
		}
	}
}
