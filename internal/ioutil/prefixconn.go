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

// Package ioutil carries the one piece of the teacher library's ioutils
// package the gateway needs: a net.Conn wrapper that lets a layer peek at
// the leading bytes of a stream — to sniff a PROXY protocol header, then
// again to tell an HTTP/2 client preface from an HTTP/1 request line —
// without consuming them, so the next layer still sees the full stream.
// The teacher's iowrapper swaps in custom read/write functions over an
// arbitrary underlying object; here the "custom read function" is always
// a bufio.Reader's buffered Peek, and the underlying object is always a
// net.Conn, so the wrapper is specialized rather than carrying the full
// generic function-slot machinery.
package ioutil

import (
	"bufio"
	"net"
)

// PrefixConn is a net.Conn whose reads are served from a bufio.Reader,
// letting callers Peek ahead of the stream before deciding how the rest of
// the connection should be handled.
type PrefixConn struct {
	net.Conn
	br *bufio.Reader
}

// NewPrefixConn wraps c with a buffered reader sized to hold the largest
// header this gateway ever needs to peek (HTTP/2 client preface framing,
// PROXY protocol v2 header).
func NewPrefixConn(c net.Conn) *PrefixConn {
	return &PrefixConn{Conn: c, br: bufio.NewReaderSize(c, 4096)}
}

// Peek returns the next n bytes without advancing the read position.
func (p *PrefixConn) Peek(n int) ([]byte, error) {
	return p.br.Peek(n)
}

// Reader exposes the underlying buffered reader for callers (such as the
// PROXY protocol parser) that need to consume framed data rather than only
// peek at it.
func (p *PrefixConn) Reader() *bufio.Reader {
	return p.br
}

// Read satisfies net.Conn by reading through the buffer instead of the raw
// connection, so bytes already consumed by a Peek-and-parse step (PROXY
// protocol header, preface) are never delivered twice.
func (p *PrefixConn) Read(b []byte) (int, error) {
	return p.br.Read(b)
}
