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

import "net/http"

// ReuseDecision is the outcome of applying spec.md §4.7's table to one
// request/response pair.
type ReuseDecision struct {
	// RestoreHTTP10 reports the response line must claim HTTP/1.0 even
	// though the request was internally upgraded to 1.1 for processing.
	RestoreHTTP10 bool
	// AddKeepAliveHeader reports "Connection: keep-alive" must be added
	// to an HTTP/1.0 response.
	AddKeepAliveHeader bool
	// RemoveConnectionHeader reports any inbound Connection header must
	// be stripped from the response.
	RemoveConnectionHeader bool
	// AddCloseHeader reports "Connection: close" must be added to the
	// response.
	AddCloseHeader bool
	// Continue reports whether the connection stays open for another
	// request after this response is written.
	Continue bool
}

// Decide applies the version × Connection-header table from spec.md
// §4.7. handlerContinue is the handler's own verdict on whether it wants
// the connection kept open (e.g. it didn't hit a fatal error); it only
// matters for the rows marked "handler-cont".
func Decide(proto string, connHeader string, handlerContinue bool) ReuseDecision {
	switch proto {
	case "HTTP/1.0":
		if connHeader == "keep-alive" {
			return ReuseDecision{RestoreHTTP10: true, AddKeepAliveHeader: true, Continue: handlerContinue}
		}
		return ReuseDecision{RestoreHTTP10: true, Continue: false}

	case "HTTP/1.1":
		switch connHeader {
		case "":
			return ReuseDecision{RemoveConnectionHeader: true, Continue: handlerContinue}
		case "close":
			return ReuseDecision{RemoveConnectionHeader: true, AddCloseHeader: true, Continue: false}
		default:
			return ReuseDecision{RemoveConnectionHeader: true, Continue: handlerContinue}
		}

	case "HTTP/2", "HTTP/2.0":
		return ReuseDecision{Continue: true}

	default:
		return ReuseDecision{Continue: false}
	}
}

// Apply mutates resp.Header and resp.Proto/ProtoMajor/ProtoMinor per the
// decision, and strips the hop-by-hop Connection header the handler is
// responsible for managing (the upstream client must never touch it).
func (d ReuseDecision) Apply(resp *http.Response) {
	if d.RemoveConnectionHeader || d.AddCloseHeader {
		resp.Header.Del("Connection")
	}
	if d.AddCloseHeader {
		resp.Header.Set("Connection", "close")
	}
	if d.AddKeepAliveHeader {
		resp.Header.Set("Connection", "keep-alive")
	}
	if d.RestoreHTTP10 {
		resp.Proto = "HTTP/1.0"
		resp.ProtoMajor = 1
		resp.ProtoMinor = 0
	}
}
