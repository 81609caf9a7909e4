package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/admin"
	"github.com/sabouaram/monoproxy/internal/fleet"
	"github.com/sabouaram/monoproxy/internal/xlog"
)

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		addr   string
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		addr = "127.0.0.1:19753"

		f := fleet.New(xlog.Noop())
		f.SpawnWorkers(ctx, 2, false)

		srv := admin.NewServer(addr, f)
		go srv.Serve(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("serves a status snapshot with one entry per spawned worker", func() {
		var snap admin.Snapshot
		Eventually(func() error {
			resp, err := http.Get("http://" + addr + "/status")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(&snap)
		}, 2*time.Second, 20*time.Millisecond).Should(Succeed())

		Expect(snap.Workers).To(HaveLen(2))
		for _, w := range snap.Workers {
			Expect(w.Sites).To(BeEmpty())
		}
	})

	It("mounts the Prometheus scrape endpoint", func() {
		var status int
		Eventually(func() error {
			resp, err := http.Get("http://" + addr + "/metrics")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			status = resp.StatusCode
			return nil
		}, 2*time.Second, 20*time.Millisecond).Should(Succeed())

		Expect(status).To(Equal(http.StatusOK))
	})
})
