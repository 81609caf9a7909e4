package router_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/config"
	"github.com/sabouaram/monoproxy/internal/router"
)

var _ = Describe("Build", func() {
	It("rejects a route with no upstreams", func() {
		_, err := router.Build([]config.Route{{Prefix: "/api", Upstreams: nil}})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("/api"))
	})

	It("defaults an empty policy to random", func() {
		table, err := router.Build([]config.Route{{
			Prefix:    "/api",
			Upstreams: []config.Upstream{{Address: "10.0.0.1:80"}},
		}})
		Expect(err).NotTo(HaveOccurred())

		match := table.Lookup("/api/v1/things")
		Expect(match.Found()).To(BeTrue())
		Expect(match.Pick().Address).To(Equal("10.0.0.1:80"))
	})
})

var _ = Describe("Lookup", func() {
	var table *router.Table

	BeforeEach(func() {
		var err error
		table, err = router.Build([]config.Route{
			{Prefix: "/", Policy: "first", Upstreams: []config.Upstream{{Address: "root:1"}}},
			{Prefix: "/api", Policy: "first", Upstreams: []config.Upstream{{Address: "api:1"}}},
			{Prefix: "/api/v2", Policy: "first", Upstreams: []config.Upstream{{Address: "apiv2:1"}}},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("resolves the longest matching prefix", func() {
		Expect(table.Lookup("/api/v2/things").Pick().Address).To(Equal("apiv2:1"))
		Expect(table.Lookup("/api/v1/things").Pick().Address).To(Equal("api:1"))
		Expect(table.Lookup("/unrelated").Pick().Address).To(Equal("root:1"))
	})

	It("reports not found when no route (including root) matches", func() {
		noRoot, err := router.Build([]config.Route{
			{Prefix: "/api", Upstreams: []config.Upstream{{Address: "api:1"}}},
		})
		Expect(err).NotTo(HaveOccurred())

		match := noRoot.Lookup("/other")
		Expect(match.Found()).To(BeFalse())
	})
})

var _ = Describe("Match.Pick policies", func() {
	It("first always returns the first configured upstream", func() {
		table, err := router.Build([]config.Route{{
			Prefix: "/x", Policy: "first",
			Upstreams: []config.Upstream{{Address: "a"}, {Address: "b"}},
		}})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 5; i++ {
			Expect(table.Lookup("/x").Pick().Address).To(Equal("a"))
		}
	})

	It("round_robin cycles deterministically across lookups", func() {
		table, err := router.Build([]config.Route{{
			Prefix: "/x", Policy: "round_robin",
			Upstreams: []config.Upstream{{Address: "a"}, {Address: "b"}, {Address: "c"}},
		}})
		Expect(err).NotTo(HaveOccurred())

		var picks []string
		for i := 0; i < 6; i++ {
			picks = append(picks, table.Lookup("/x").Pick().Address)
		}
		Expect(picks).To(Equal([]string{"a", "b", "c", "a", "b", "c"}))
	})

	It("weighted_random only ever picks from the configured set", func() {
		table, err := router.Build([]config.Route{{
			Prefix: "/x", Policy: "weighted_random",
			Upstreams: []config.Upstream{{Address: "a", Weight: 10}, {Address: "b", Weight: 0}},
		}})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 20; i++ {
			Expect(table.Lookup("/x").Pick().Address).To(BeElementOf("a", "b"))
		}
	})

	It("random only ever picks from the configured set", func() {
		table, err := router.Build([]config.Route{{
			Prefix: "/x",
			Upstreams: []config.Upstream{{Address: "a"}, {Address: "b"}},
		}})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 20; i++ {
			Expect(table.Lookup("/x").Pick().Address).To(BeElementOf("a", "b"))
		}
	})
})

var _ = Describe("Rewrite", func() {
	It("is nil when the route configures none", func() {
		table, err := router.Build([]config.Route{{
			Prefix: "/x", Upstreams: []config.Upstream{{Address: "a"}},
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Lookup("/x").Rewrite()).To(BeNil())
	})

	It("carries strip/add prefix through to the match", func() {
		table, err := router.Build([]config.Route{{
			Prefix:    "/x",
			Upstreams: []config.Upstream{{Address: "a"}},
			Rewrite:   &config.Rewrite{StripPrefix: "/x", AddPrefix: "/internal"},
		}})
		Expect(err).NotTo(HaveOccurred())

		rw := table.Lookup("/x").Rewrite()
		Expect(rw).NotTo(BeNil())
		Expect(rw.StripPrefix).To(Equal("/x"))
		Expect(rw.AddPrefix).To(Equal("/internal"))
	})
})
