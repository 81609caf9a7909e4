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

// Package httpproto implements the HTTP/1 and HTTP/2 engines (spec.md
// §4.4/§4.5), the preface-based protocol detector (§4.6) and the
// connection-reuse decision table (§4.7). Grounded on the teacher
// library's httpserver package (ServerConfig's MaxConcurrentStreams /
// MaxReadFrameSize fields, the PoolServer accept-loop shape) for the
// ambient server configuration, and on golang.org/x/net/http2 for the
// HTTP/2 wire engine rather than hand-rolled framing.
package httpproto

import (
	"github.com/sabouaram/monoproxy/internal/ioutil"
)

const h2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Detect peeks up to len(h2Preface) bytes from conn and reports whether
// the connection opens with the HTTP/2 client preface. The peeked bytes
// are never consumed — PrefixConn's buffered reader re-delivers them to
// whichever engine handles the connection next.
func Detect(conn *ioutil.PrefixConn) (isH2 bool, err error) {
	peek, err := conn.Peek(len(h2Preface))
	if err != nil {
		// Fewer bytes than the full preface: compare what we have. The
		// connection is reported as h2 when every byte received matches
		// the start of the preface, h1 otherwise; the read error is not
		// returned, so the chosen engine surfaces it.
		return bytesHavePrefix(peek, h2Preface), nil
	}
	return string(peek) == h2Preface, nil
}

func bytesHavePrefix(got []byte, want string) bool {
	if len(got) == 0 {
		return false
	}
	n := len(got)
	if n > len(want) {
		n = len(want)
	}
	return string(got[:n]) == want[:n]
}
