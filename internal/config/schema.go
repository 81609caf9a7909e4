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

// Package config is the runtime/servers/routes schema the gateway is
// started from, adapted from the teacher library's httpserver.ServerConfig
// (mapstructure/json/yaml/toml tags plus go-playground/validator rules)
// generalized from "one HTTP server" to "the whole fleet".
package config

import "fmt"


// Runtime controls the fleet-wide thread-per-core layout (component C1/C4).
type Runtime struct {
	// WorkerThreads pins one goroutine per logical core when zero — see
	// resolveWorkerThreads in load.go, which fills this from gopsutil's
	// CPU count.
	WorkerThreads int `mapstructure:"worker_threads" json:"worker_threads" yaml:"worker_threads" toml:"worker_threads" validate:"gte=0"`
}

// Timeouts are all optional; absent (zero) means "no timeout applied",
// except KeepaliveSec and KeepaliveMaxReq, which applyDefaults sets to
// 3600 and 1000 when they are zero.
type Timeouts struct {
	ReadSec         int `mapstructure:"read_sec" json:"read_sec" yaml:"read_sec" toml:"read_sec" validate:"gte=0"`
	WriteSec        int `mapstructure:"write_sec" json:"write_sec" yaml:"write_sec" toml:"write_sec" validate:"gte=0"`
	KeepaliveSec    int `mapstructure:"keepalive_sec" json:"keepalive_sec" yaml:"keepalive_sec" toml:"keepalive_sec" validate:"gte=0"`
	UpstreamSec     int `mapstructure:"upstream_sec" json:"upstream_sec" yaml:"upstream_sec" toml:"upstream_sec" validate:"gte=0"`
	PoolIdleSec     int `mapstructure:"pool_idle_sec" json:"pool_idle_sec" yaml:"pool_idle_sec" toml:"pool_idle_sec" validate:"gte=0"`
	KeepaliveMaxReq int `mapstructure:"keepalive_max_requests" json:"keepalive_max_requests" yaml:"keepalive_max_requests" toml:"keepalive_max_requests" validate:"gte=0"`
}

// TLS names the certificate pair and stack for a listener (see
// internal/tlslayer; both stack values map to crypto/tls).
type TLS struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	KeyFile   string `mapstructure:"key_file" json:"key_file" yaml:"key_file" toml:"key_file" validate:"required_if=Enabled true"`
	ChainFile string `mapstructure:"chain_file" json:"chain_file" yaml:"chain_file" toml:"chain_file" validate:"required_if=Enabled true"`
	Stack     string `mapstructure:"stack" json:"stack" yaml:"stack" toml:"stack" validate:"omitempty,oneof=native_tls rustls"`
}

// Upstream is one backend address behind a route, with its load-balance
// weight.
type Upstream struct {
	Address string `mapstructure:"address" json:"address" yaml:"address" toml:"address" validate:"required,hostname_port"`
	Weight  int    `mapstructure:"weight" json:"weight" yaml:"weight" toml:"weight" validate:"gte=0"`
}

// Rewrite describes a URI prefix substitution applied before the request is
// forwarded upstream.
type Rewrite struct {
	StripPrefix string `mapstructure:"strip_prefix" json:"strip_prefix" yaml:"strip_prefix" toml:"strip_prefix"`
	AddPrefix   string `mapstructure:"add_prefix" json:"add_prefix" yaml:"add_prefix" toml:"add_prefix"`
}

// Route matches a URI prefix to a set of upstreams and a load-balance
// policy.
type Route struct {
	Prefix    string     `mapstructure:"prefix" json:"prefix" yaml:"prefix" toml:"prefix" validate:"required"`
	Policy    string     `mapstructure:"policy" json:"policy" yaml:"policy" toml:"policy" validate:"omitempty,oneof=random weighted_random round_robin first"`
	Rewrite   *Rewrite   `mapstructure:"rewrite" json:"rewrite" yaml:"rewrite" toml:"rewrite"`
	Upstreams []Upstream `mapstructure:"upstreams" json:"upstreams" yaml:"upstreams" toml:"upstreams" validate:"required,min=1,dive"`
}

// Protocol is the service-chain kind a listener terminates.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolThrift Protocol = "thrift"
)

// NetKind selects what a listener binds: a TCP socket or a Unix domain
// path, per spec.md §6's `listener: {type: "socket"|"unix", value: ...}`.
type NetKind string

const (
	NetSocket NetKind = "socket"
	NetUnix   NetKind = "unix"
)

// Listener is one accept loop: a TCP or Unix-domain bind target, optional
// TLS, optional PROXY protocol acceptance, and the routing table reachable
// through it.
type Listener struct {
	Type         NetKind  `mapstructure:"type" json:"type" yaml:"type" toml:"type" validate:"omitempty,oneof=socket unix"`
	Address      string   `mapstructure:"address" json:"address" yaml:"address" toml:"address" validate:"omitempty,hostname_port"`
	UnixPath     string   `mapstructure:"unix_path" json:"unix_path" yaml:"unix_path" toml:"unix_path"`
	Protocol     Protocol `mapstructure:"protocol" json:"protocol" yaml:"protocol" toml:"protocol" validate:"required,oneof=http thrift"`
	ProxyProto   bool     `mapstructure:"proxy_protocol" json:"proxy_protocol" yaml:"proxy_protocol" toml:"proxy_protocol"`
	TLS          TLS      `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
	Routes       []Route  `mapstructure:"routes" json:"routes" yaml:"routes" toml:"routes" validate:"required,min=1,dive"`
	PoolCapacity int      `mapstructure:"pool_capacity" json:"pool_capacity" yaml:"pool_capacity" toml:"pool_capacity" validate:"gte=0"`
}

// Site is one named, independently hot-swappable unit of routing
// configuration (component C2's SiteEntry).
type Site struct {
	Name     string   `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`
	Listener Listener `mapstructure:"listener" json:"listener" yaml:"listener" toml:"listener"`
	Timeouts Timeouts `mapstructure:"timeouts" json:"timeouts" yaml:"timeouts" toml:"timeouts"`
}

// File is the top-level document a config file (TOML or JSON) unmarshals
// into.
type File struct {
	Runtime Runtime `mapstructure:"runtime" json:"runtime" yaml:"runtime" toml:"runtime"`
	Sites   []Site  `mapstructure:"sites" json:"sites" yaml:"sites" toml:"sites" validate:"required,min=1,dive"`
}

// Defaults mirror spec.md's §6 stated defaults for fields callers leave
// unset.
const (
	DefaultPoolCapacity    = 32768
	DefaultKeepaliveSec    = 3600
	DefaultKeepaliveMaxReq = 1000
)

func applyDefaults(f *File) {
	for i := range f.Sites {
		s := &f.Sites[i]
		if s.Listener.Type == "" {
			s.Listener.Type = NetSocket
		}
		if s.Listener.PoolCapacity == 0 {
			s.Listener.PoolCapacity = DefaultPoolCapacity
		}
		if s.Timeouts.KeepaliveSec == 0 {
			s.Timeouts.KeepaliveSec = DefaultKeepaliveSec
		}
		if s.Timeouts.KeepaliveMaxReq == 0 {
			s.Timeouts.KeepaliveMaxReq = DefaultKeepaliveMaxReq
		}
	}
}

// validateListenerBind enforces the cross-field requirement struct tags
// can't express cleanly: a socket listener needs Address, a unix listener
// needs UnixPath, and it needs exactly one of them.
func validateListenerBind(f *File) error {
	for _, s := range f.Sites {
		l := s.Listener
		switch l.Type {
		case NetUnix:
			if l.UnixPath == "" {
				return fmt.Errorf("site %s: listener.unix_path is required for type=unix", s.Name)
			}
		default:
			if l.Address == "" {
				return fmt.Errorf("site %s: listener.address is required for type=socket", s.Name)
			}
		}
	}
	return nil
}

// MaxFileSize is the hard cap enforced while reading a config file before
// it is handed to the decoder, per spec.md §6.
const MaxFileSize = 16 << 20
