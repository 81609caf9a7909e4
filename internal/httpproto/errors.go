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
	"net/http"
	"strings"

	"github.com/sabouaram/monoproxy/internal/reqctx"
	"github.com/sabouaram/monoproxy/internal/xerr"
)

// synthesizeError maps a handler error to the response spec.md §7 and
// §6 require at the boundary: 400 for malformed/unresolvable request
// URI, 404 for unmatched route, 502 for upstream failures, 500 for
// anything else.
func synthesizeError(req *http.Request, err error) *http.Response {
	status := xerr.HTTPStatus(err)
	body := status400Text(status)
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func status400Text(status int) string {
	return http.StatusText(status) + "\n"
}

// attachRequestID stamps resp with the bag's request id unless the
// handler chain already set one.
func attachRequestID(resp *http.Response, bag *reqctx.Bag) {
	if resp == nil || bag == nil {
		return
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	if resp.Header.Get("X-Request-Id") != "" {
		return
	}
	resp.Header.Set("X-Request-Id", bag.RequestID())
}
