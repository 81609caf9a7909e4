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
	"bufio"
	"net"
	"time"

	"github.com/sabouaram/monoproxy/internal/xlog"
)

// Handler proxies one decoded Thrift message to a pooled upstream
// connection and returns the response payload. A non-nil err means the
// upstream call failed; the handler itself closes that upstream
// connection instead of returning it to the pool (see Proxy.Handle), and
// Serve closes the inbound connection.
type Handler func(req []byte) (resp []byte, err error)

// Timeouts mirrors spec.md §3's Thrift ServerTimeouts: keepalive and
// message, both optional.
type Timeouts struct {
	KeepaliveTimeout time.Duration
	MessageTimeout   time.Duration
}

// Serve runs the per-connection THeader loop: peek for the keepalive
// timeout, decode one frame under the message timeout, dispatch to
// handle, write the response frame, and loop.
func Serve(conn net.Conn, to Timeouts, handle Handler, log xlog.Logger) {
	defer conn.Close()
	br := bufio.NewReader(conn)

	for {
		if to.KeepaliveTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(to.KeepaliveTimeout))
		}
		if !Peek(br) {
			return
		}

		if to.MessageTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(to.MessageTimeout))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		req, err := ReadFrame(br)
		if err != nil {
			log.WithError(err).Debug("thrift decode failed, closing")
			return
		}

		resp, err := handle(req)
		if err != nil {
			log.WithError(err).Warn("thrift upstream proxy failed")
			return
		}

		conn.SetWriteDeadline(time.Time{})
		if err := WriteFrame(conn, resp); err != nil {
			return
		}
	}
}
