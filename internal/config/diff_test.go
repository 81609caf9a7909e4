package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/config"
)

func siteNamed(name, addr string) config.Site {
	return config.Site{
		Name: name,
		Listener: config.Listener{
			Address:  addr,
			Protocol: config.ProtocolHTTP,
			Routes: []config.Route{{
				Prefix:    "/",
				Upstreams: []config.Upstream{{Address: "10.0.0.1:80"}},
			}},
		},
	}
}

var _ = Describe("Diff", func() {
	It("emits PatchAdd for a brand-new site", func() {
		prev := &config.File{}
		cur := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:8080")}}

		patches := config.Diff(prev, cur)
		Expect(patches).To(HaveLen(1))
		Expect(patches[0].Kind).To(Equal(config.PatchAdd))
		Expect(patches[0].Name).To(Equal("edge"))
	})

	It("emits PatchRemove for a site dropped from the new generation", func() {
		prev := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:8080")}}
		cur := &config.File{}

		patches := config.Diff(prev, cur)
		Expect(patches).To(HaveLen(1))
		Expect(patches[0].Kind).To(Equal(config.PatchRemove))
		Expect(patches[0].Name).To(Equal("edge"))
	})

	It("emits PatchUpdate when a field on an existing site changes", func() {
		prev := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:8080")}}
		cur := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:9090")}}

		patches := config.Diff(prev, cur)
		Expect(patches).To(HaveLen(1))
		Expect(patches[0].Kind).To(Equal(config.PatchUpdate))
	})

	It("emits nothing for two identical generations", func() {
		prev := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:8080")}}
		cur := &config.File{Sites: []config.Site{siteNamed("edge", "0.0.0.0:8080")}}

		Expect(config.Diff(prev, cur)).To(BeEmpty())
	})
})
