package reqctx_test

import (
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/reqctx"
)

var _ = Describe("Bag", func() {
	peer := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234}

	It("seeds PeerAddr and a non-empty request id", func() {
		b := reqctx.New(peer)
		Expect(b.PeerAddr()).To(Equal(peer))
		Expect(b.RequestID()).NotTo(BeEmpty())
	})

	It("mints a distinct request id per bag", func() {
		a := reqctx.New(peer)
		b := reqctx.New(peer)
		Expect(a.RequestID()).NotTo(Equal(b.RequestID()))
	})

	It("RemoteAddr is absent until a PROXY-protocol address is set", func() {
		b := reqctx.New(peer)
		_, ok := b.RemoteAddr()
		Expect(ok).To(BeFalse())
		Expect(b.ForwardedFor()).To(Equal(peer))
	})

	It("prefers RemoteAddr over PeerAddr once set", func() {
		b := reqctx.New(peer)
		remote := &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 443}
		b.Set(reqctx.KeyRemoteAddr, net.Addr(remote))

		got, ok := b.RemoteAddr()
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(remote))
		Expect(b.ForwardedFor()).To(Equal(remote))
	})
})
