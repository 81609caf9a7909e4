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

// Package proxyproto peeks the first bytes of an accepted connection for a
// PROXY protocol v1 (text) or v2 (binary) header and, when present, strips
// it and recovers the original client address. No pack dependency speaks
// this wire format, so the byte layout here is hand-rolled against the v2
// header diagram, the same one sketched informally in the
// proxyProto/s1.go example from the retrieved corpus.
package proxyproto

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var v2Signature = [12]byte{0x0D, 0x0A, 0x0A, 0x0A, 0x21, 0x50, 0x52, 0x4F, 0x58, 0x59, 0x20, 0x32}

const v1Prefix = "PROXY "

// Header is the recovered original-client information.
type Header struct {
	SrcAddr net.Addr
	DstAddr net.Addr
}

// Peek looks at br without consuming anything beyond what the protocol
// header itself occupies. It reports ok=false when the stream does not
// start with a recognizable PROXY protocol header, in which case the
// caller should treat br as carrying the original protocol unmodified.
func Peek(br *bufio.Reader) (hdr *Header, ok bool, err error) {
	sig, err := br.Peek(12)
	if err == nil && string(sig) == string(v2Signature[:]) {
		hdr, err := readV2(br)
		return hdr, true, err
	}

	prefix, err := br.Peek(len(v1Prefix))
	if err == nil && string(prefix) == v1Prefix {
		hdr, err := readV1(br)
		return hdr, true, err
	}

	return nil, false, nil
}

func readV1(br *bufio.Reader) (*Header, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("proxyproto: read v1 header: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	// PROXY <proto> <src-ip> <dst-ip> <src-port> <dst-port>
	if len(fields) != 6 {
		return nil, fmt.Errorf("proxyproto: malformed v1 header %q", line)
	}

	srcPort, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, fmt.Errorf("proxyproto: bad v1 src port: %w", err)
	}
	dstPort, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, fmt.Errorf("proxyproto: bad v1 dst port: %w", err)
	}

	return &Header{
		SrcAddr: &net.TCPAddr{IP: net.ParseIP(fields[2]), Port: srcPort},
		DstAddr: &net.TCPAddr{IP: net.ParseIP(fields[3]), Port: dstPort},
	}, nil
}

func readV2(br *bufio.Reader) (*Header, error) {
	fixed := make([]byte, 16)
	if _, err := readFull(br, fixed); err != nil {
		return nil, fmt.Errorf("proxyproto: read v2 fixed header: %w", err)
	}

	verCmd := fixed[12]
	if verCmd>>4 != 0x2 {
		return nil, fmt.Errorf("proxyproto: unsupported v2 version %x", verCmd>>4)
	}
	cmd := verCmd & 0x0F

	family := fixed[13] >> 4
	addrLen := binary.BigEndian.Uint16(fixed[14:16])

	body := make([]byte, addrLen)
	if _, err := readFull(br, body); err != nil {
		return nil, fmt.Errorf("proxyproto: read v2 address block: %w", err)
	}

	// LOCAL command carries no meaningful address; the accepting side's
	// own addresses should be used instead.
	if cmd == 0x0 {
		return &Header{}, nil
	}

	switch family {
	case 0x1: // AF_INET
		if len(body) < 12 {
			return nil, fmt.Errorf("proxyproto: short v2 ipv4 block")
		}
		srcIP := net.IP(body[0:4])
		dstIP := net.IP(body[4:8])
		srcPort := binary.BigEndian.Uint16(body[8:10])
		dstPort := binary.BigEndian.Uint16(body[10:12])
		return &Header{
			SrcAddr: &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			DstAddr: &net.TCPAddr{IP: dstIP, Port: int(dstPort)},
		}, nil
	case 0x2: // AF_INET6
		if len(body) < 36 {
			return nil, fmt.Errorf("proxyproto: short v2 ipv6 block")
		}
		srcIP := net.IP(body[0:16])
		dstIP := net.IP(body[16:32])
		srcPort := binary.BigEndian.Uint16(body[32:34])
		dstPort := binary.BigEndian.Uint16(body[34:36])
		return &Header{
			SrcAddr: &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			DstAddr: &net.TCPAddr{IP: dstIP, Port: int(dstPort)},
		}, nil
	default:
		// AF_UNIX or unspecified: no routable address, ignore the body.
		return &Header{}, nil
	}
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
