package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/monoproxy/internal/config"
)

const validJSON = `{
	"runtime": {"worker_threads": 2},
	"sites": [{
		"name": "edge",
		"listener": {
			"address": "0.0.0.0:8080",
			"protocol": "http",
			"routes": [{
				"prefix": "/api",
				"upstreams": [{"address": "10.0.0.1:80"}]
			}]
		}
	}]
}`

var _ = Describe("Parse", func() {
	It("decodes a valid JSON document", func() {
		file, err := config.Parse([]byte(validJSON))
		Expect(err).NotTo(HaveOccurred())
		Expect(file.Runtime.WorkerThreads).To(Equal(2))
		Expect(file.Sites).To(HaveLen(1))
		Expect(file.Sites[0].Name).To(Equal("edge"))
	})

	It("fills pool capacity and keepalive defaults when left unset", func() {
		file, err := config.Parse([]byte(validJSON))
		Expect(err).NotTo(HaveOccurred())

		site := file.Sites[0]
		Expect(site.Listener.PoolCapacity).To(Equal(config.DefaultPoolCapacity))
		Expect(site.Timeouts.KeepaliveSec).To(Equal(config.DefaultKeepaliveSec))
		Expect(site.Timeouts.KeepaliveMaxReq).To(Equal(config.DefaultKeepaliveMaxReq))
	})

	It("resolves worker_threads from the host CPU count when left at zero", func() {
		raw := []byte(`{
			"sites": [{
				"name": "edge",
				"listener": {
					"address": "0.0.0.0:8080",
					"protocol": "http",
					"routes": [{"prefix": "/", "upstreams": [{"address": "10.0.0.1:80"}]}]
				}
			}]
		}`)
		file, err := config.Parse(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(file.Runtime.WorkerThreads).To(BeNumerically(">", 0))
	})

	It("rejects a site with no routes", func() {
		raw := []byte(`{
			"sites": [{
				"name": "edge",
				"listener": {"address": "0.0.0.0:8080", "protocol": "http", "routes": []}
			}]
		}`)
		_, err := config.Parse(raw)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown protocol", func() {
		raw := []byte(`{
			"sites": [{
				"name": "edge",
				"listener": {
					"address": "0.0.0.0:8080",
					"protocol": "carrier-pigeon",
					"routes": [{"prefix": "/", "upstreams": [{"address": "10.0.0.1:80"}]}]
				}
			}]
		}`)
		_, err := config.Parse(raw)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown load-balance policy", func() {
		raw := []byte(`{
			"sites": [{
				"name": "edge",
				"listener": {
					"address": "0.0.0.0:8080",
					"protocol": "http",
					"routes": [{"prefix": "/", "policy": "coin-flip", "upstreams": [{"address": "10.0.0.1:80"}]}]
				}
			}]
		}`)
		_, err := config.Parse(raw)
		Expect(err).To(HaveOccurred())
	})

	It("parses TOML input too, sniffed from the leading byte", func() {
		toml := []byte(`
[runtime]
worker_threads = 1

[[sites]]
name = "edge"

[sites.listener]
address = "0.0.0.0:8080"
protocol = "http"

[[sites.listener.routes]]
prefix = "/"

[[sites.listener.routes.upstreams]]
address = "10.0.0.1:80"
`)
		file, err := config.Parse(toml)
		Expect(err).NotTo(HaveOccurred())
		Expect(file.Sites[0].Name).To(Equal("edge"))
	})
})

var _ = Describe("Load", func() {
	It("surfaces an open error for a missing file", func() {
		_, err := config.Load("/nonexistent/path/to/gateway.toml")
		Expect(err).To(HaveOccurred())
	})
})
