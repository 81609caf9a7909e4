package worker_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/service"
	"github.com/sabouaram/monoproxy/internal/worker"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

// fakeService is a minimal service.Service double: it records that it was
// asked to serve a connection and, when block is non-nil, parks there until
// the test releases it, standing in for an in-flight request.
type fakeService struct {
	id      int
	serving chan struct{}
	block   chan struct{}
}

func (s *fakeService) Serve(ctx context.Context, conn net.Conn) {
	if s.serving != nil {
		close(s.serving)
	}
	if s.block != nil {
		<-s.block
	}
	conn.Close()
}

// fakeFactory records the old instance it was handed, the only way to
// observe whether a Build call actually inherited state from its
// predecessor.
type fakeFactory struct {
	svc    *fakeService
	gotOld service.Service
	built  bool
}

func (f *fakeFactory) Build(old service.Service) (service.Service, error) {
	f.gotOld = old
	f.built = true
	return f.svc, nil
}

func listenerFactory(ln net.Listener) service.ListenerFactory {
	return service.ListenerFactoryFunc(func() (net.Listener, error) { return ln, nil })
}

var _ = Describe("Worker command lifecycle", func() {
	var (
		ctx context.Context
		cxl context.CancelFunc
		w   *worker.Worker
	)

	BeforeEach(func() {
		ctx, cxl = context.WithCancel(context.Background())
		w = worker.New(ctx, 0, xlog.Noop())
		go w.Run()
	})

	AfterEach(func() {
		cxl()
	})

	send := func(cmd worker.Command) error {
		reply, ok := w.Send(cmd)
		Expect(ok).To(BeTrue())
		return (<-reply).Err
	}

	It("PrepareAndCommit installs a committed entry with no inherited state", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		f := &fakeFactory{svc: &fakeService{id: 1}}
		Expect(send(worker.Command{
			Kind:            worker.KindPrepareAndCommit,
			Name:            "edge",
			ServiceFactory:  f,
			ListenerFactory: listenerFactory(ln),
		})).NotTo(HaveOccurred())

		Expect(f.built).To(BeTrue())
		Expect(f.gotOld).To(BeNil())

		e, ok := w.Registry.Get("edge")
		Expect(ok).To(BeTrue())
		Expect(e.Committed()).To(BeTrue())
	})

	It("carries the live service into Precommit's Build call and swaps it in on Update", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		first := &fakeFactory{svc: &fakeService{id: 1}}
		Expect(send(worker.Command{
			Kind:            worker.KindPrepareAndCommit,
			Name:            "edge",
			ServiceFactory:  first,
			ListenerFactory: listenerFactory(ln),
		})).NotTo(HaveOccurred())

		second := &fakeFactory{svc: &fakeService{id: 2}}
		Expect(send(worker.Command{
			Kind:           worker.KindPrecommit,
			Name:           "edge",
			ServiceFactory: second,
		})).NotTo(HaveOccurred())

		// The pool-transfer contract: Precommit's Build sees the currently
		// committed instance so a new service can inherit its pools/state.
		Expect(second.gotOld).To(BeIdenticalTo(first.svc))

		e, ok := w.Registry.Get("edge")
		Expect(ok).To(BeTrue())
		Expect(e.StagedPresent()).To(BeTrue())

		Expect(send(worker.Command{Kind: worker.KindUpdate, Name: "edge"})).NotTo(HaveOccurred())

		e, ok = w.Registry.Get("edge")
		Expect(ok).To(BeTrue())
		Expect(e.StagedPresent()).To(BeFalse())
		Expect(*e.Slot.Load()).To(BeIdenticalTo(service.Service(second.svc)))
	})

	It("releases the listener on Remove even while a connection is still being served", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()

		svc := &fakeService{id: 1, serving: make(chan struct{}), block: make(chan struct{})}
		f := &fakeFactory{svc: svc}
		Expect(send(worker.Command{
			Kind:            worker.KindPrepareAndCommit,
			Name:            "edge",
			ServiceFactory:  f,
			ListenerFactory: listenerFactory(ln),
		})).NotTo(HaveOccurred())

		conn, err := net.Dial("tcp", addr)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		Eventually(svc.serving, time.Second).Should(BeClosed())

		Expect(send(worker.Command{Kind: worker.KindRemove, Name: "edge"})).NotTo(HaveOccurred())

		_, ok := w.Registry.Get("edge")
		Expect(ok).To(BeFalse())

		// S7: the port is actually released, even though the in-flight
		// connection above is still parked in Serve and was never closed
		// by Remove itself.
		ln2, err := net.Listen("tcp", addr)
		Expect(err).NotTo(HaveOccurred())
		ln2.Close()

		close(svc.block)
	})
})
