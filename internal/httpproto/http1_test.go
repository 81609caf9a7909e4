package httpproto_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/httpproto"
	"github.com/sabouaram/monoproxy/internal/reqctx"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

func okHandler(calls *int32) httpproto.Handler {
	return func(ctx context.Context, req *http.Request, bag *reqctx.Bag) (*http.Response, error) {
		atomic.AddInt32(calls, 1)
		return &http.Response{
			StatusCode:    200,
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        http.Header{},
			Body:          io.NopCloser(strings.NewReader("OK")),
			ContentLength: 2,
		}, nil
	}
}

var _ = Describe("Serve1", func() {
	It("serves two pipelined HTTP/1.1 requests over one connection without closing between them", func() {
		client, server := net.Pipe()
		var calls int32

		done := make(chan struct{})
		go func() {
			defer close(done)
			httpproto.Serve1(context.Background(), server, bufio.NewReader(server), client.LocalAddr(), httpproto.Timeouts1{}, okHandler(&calls), xlog.Noop())
		}()

		go func() {
			io.WriteString(client, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
			io.WriteString(client, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
		}()

		br := bufio.NewReader(client)

		resp1, err := http.ReadResponse(br, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp1.StatusCode).To(Equal(200))
		Expect(resp1.Header.Get("Connection")).To(BeEmpty())
		io.Copy(io.Discard, resp1.Body)
		resp1.Body.Close()

		resp2, err := http.ReadResponse(br, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp2.StatusCode).To(Equal(200))
		io.Copy(io.Discard, resp2.Body)
		resp2.Body.Close()

		client.Close()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
	})

	It("keeps the keepalive idle wait independent of the header-read wait", func() {
		// Regression test: KeepaliveTimeout and ReadHeaderTimeout used to
		// both call SetReadDeadline back-to-back with no I/O between them,
		// so the second call silently discarded the first. With both set,
		// a normal request still has to be read successfully under
		// whichever deadline is actually in force at read time.
		client, server := net.Pipe()
		var calls int32

		done := make(chan struct{})
		to := httpproto.Timeouts1{KeepaliveTimeout: time.Minute, ReadHeaderTimeout: time.Minute}
		go func() {
			defer close(done)
			httpproto.Serve1(context.Background(), server, bufio.NewReader(server), client.LocalAddr(), to, okHandler(&calls), xlog.Noop())
		}()

		go io.WriteString(client, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")

		br := bufio.NewReader(client)
		resp, err := http.ReadResponse(br, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		client.Close()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
	})

	It("closes the connection once the idle peek observes no further bytes", func() {
		client, server := net.Pipe()
		var calls int32

		done := make(chan struct{})
		go func() {
			defer close(done)
			httpproto.Serve1(context.Background(), server, bufio.NewReader(server), client.LocalAddr(), httpproto.Timeouts1{}, okHandler(&calls), xlog.Noop())
		}()

		client.Close()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(0)))
	})

	It("restores HTTP/1.0 framing and closes when the client sent no Connection header", func() {
		client, server := net.Pipe()
		var calls int32

		done := make(chan struct{})
		go func() {
			defer close(done)
			httpproto.Serve1(context.Background(), server, bufio.NewReader(server), client.LocalAddr(), httpproto.Timeouts1{}, okHandler(&calls), xlog.Noop())
		}()

		go io.WriteString(client, "GET / HTTP/1.0\r\nHost: x\r\n\r\n")

		br := bufio.NewReader(client)
		resp, err := http.ReadResponse(br, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Proto).To(Equal("HTTP/1.0"))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		Eventually(done, time.Second).Should(BeClosed())
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
	})
})
