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
	"io"
	"net"
	"net/http"

	"golang.org/x/net/http2"

	"github.com/sabouaram/monoproxy/internal/reqctx"
)

// Timeouts2 configures the HTTP/2 engine's handshake parameters
// (spec.md §4.5: initial window 1,000,000, max concurrent streams
// 1,000). The service chain gives every site DefaultTimeouts2; the
// config schema has no fields for these settings.
type Timeouts2 struct {
	InitialWindowSize    uint32
	MaxConcurrentStreams uint32
	MaxReadFrameSize     uint32
}

// DefaultTimeouts2 matches spec.md §4.5's stated defaults.
var DefaultTimeouts2 = Timeouts2{
	InitialWindowSize:    1_000_000,
	MaxConcurrentStreams: 1_000,
}

// Serve2 runs conn as an HTTP/2 connection. Each accepted stream is
// handed to handle as an *http.Request/ResponseWriter pair by the
// http2.Server's own per-stream goroutine — the idiomatic Go equivalent
// of spec.md §4.5's "spawn one backend call per accepted stream" loop;
// Go's http2.Server already arbitrates concurrent streams, in-flight
// backend calls and response-send ordering internally, so this layer
// only has to bridge Handler into an http.Handler.
func Serve2(conn net.Conn, peer net.Addr, to Timeouts2, handle Handler) {
	srv := &http2.Server{
		MaxConcurrentStreams:         to.MaxConcurrentStreams,
		MaxReadFrameSize:             to.MaxReadFrameSize,
		MaxUploadBufferPerStream:     int32(to.InitialWindowSize),
		MaxUploadBufferPerConnection: int32(to.InitialWindowSize),
	}

	httpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bag := reqctx.New(peer)
		resp, err := handle(r.Context(), r, bag)
		if err != nil {
			resp = synthesizeError(r, err)
		}
		attachRequestID(resp, bag)
		writeUpstreamResponse(w, resp)
	})

	srv.ServeConn(conn, &http2.ServeConnOpts{Handler: httpHandler})
}

// writeUpstreamResponse copies an *http.Response (as returned by the
// upstream client, or synthesized on error) onto an HTTP/2
// ResponseWriter. On handler error a 500/502/400/404 is synthesized and
// the stream ends there, matching spec.md §4.5's "on handler error,
// synthesize a 500 and end the stream" — generalized to the same status
// mapping the HTTP/1 engine uses.
func writeUpstreamResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	h := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if resp.Body != nil {
		io.Copy(w, resp.Body)
	}
}
