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

// Package router builds a prefix-trie RouteTable from a site's route list
// and, on each request, resolves the longest matching prefix to one
// upstream via the route's load-balance policy. The corpus's own
// router/socket packages arrived with only test files (no real source),
// so this tree is grounded directly on spec.md §4.8's decision table and
// on the config schema this package consumes.
package router

import (
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/sabouaram/monoproxy/internal/config"
)

// EndpointKind distinguishes the three upstream address shapes spec.md
// names.
type EndpointKind int

const (
	EndpointURI EndpointKind = iota
	EndpointSocket
	EndpointUnix
)

// Endpoint is one resolved upstream target.
type Endpoint struct {
	Kind    EndpointKind
	Address string // the configured string as-is: host:port, unix path, or scheme://authority[/path]
	Scheme  string // not filled in by Build
	Path    string // not filled in by Build
	Weight  int
}

// Rewrite mirrors config.Rewrite.
type Rewrite struct {
	StripPrefix string
	AddPrefix   string
}

// node is one trie level keyed by path segment.
type node struct {
	children  map[string]*node
	terminal  bool
	upstreams []Endpoint
	policy    string
	rewrite   *Rewrite
	rrCounter uint64
}

// Table is a site's read-only-after-construction route trie.
type Table struct {
	root *node
}

// ErrEmptyUpstreams is returned by Build when a route names no upstreams.
type ErrEmptyUpstreams struct{ Prefix string }

func (e ErrEmptyUpstreams) Error() string {
	return "router: route " + e.Prefix + " has no upstreams"
}

// Build constructs a Table from a site's route list. A route with no
// upstreams rejects the whole construction, matching spec.md §4.8.
func Build(routes []config.Route) (*Table, error) {
	root := &node{children: make(map[string]*node)}

	for _, r := range routes {
		if len(r.Upstreams) == 0 {
			return nil, ErrEmptyUpstreams{Prefix: r.Prefix}
		}

		n := root
		for _, seg := range splitPrefix(r.Prefix) {
			child, ok := n.children[seg]
			if !ok {
				child = &node{children: make(map[string]*node)}
				n.children[seg] = child
			}
			n = child
		}

		n.terminal = true
		n.policy = r.Policy
		if n.policy == "" {
			n.policy = "random"
		}
		if r.Rewrite != nil {
			n.rewrite = &Rewrite{StripPrefix: r.Rewrite.StripPrefix, AddPrefix: r.Rewrite.AddPrefix}
		}
		for _, u := range r.Upstreams {
			n.upstreams = append(n.upstreams, Endpoint{
				Kind:    classify(u.Address),
				Address: u.Address,
				Weight:  u.Weight,
			})
		}
	}

	return &Table{root: root}, nil
}

func classify(address string) EndpointKind {
	switch {
	case strings.HasPrefix(address, "/"):
		return EndpointUnix
	case strings.Contains(address, "://"):
		return EndpointURI
	default:
		return EndpointSocket
	}
}

func splitPrefix(prefix string) []string {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Match is the result of a longest-prefix lookup: the matched node's
// upstream set, policy and rewrite rule.
type Match struct {
	found     bool
	upstreams []Endpoint
	policy    string
	rewrite   *Rewrite
	counter   *uint64
}

// Found reports whether any route matched.
func (m Match) Found() bool { return m.found }

// Lookup walks the trie along path's segments, remembering the deepest
// terminal node seen — the longest-prefix match.
func (t *Table) Lookup(path string) Match {
	n := t.root
	best := (*node)(nil)
	if n.terminal {
		best = n
	}

	for _, seg := range splitPrefix(path) {
		child, ok := n.children[seg]
		if !ok {
			break
		}
		n = child
		if n.terminal {
			best = n
		}
	}

	if best == nil {
		return Match{found: false}
	}
	return Match{
		found:     true,
		upstreams: best.upstreams,
		policy:    best.policy,
		rewrite:   best.rewrite,
		counter:   &best.rrCounter,
	}
}

// Rewrite exposes the matched route's rewrite rule, if any.
func (m Match) Rewrite() *Rewrite { return m.rewrite }

// Pick selects one upstream according to the matched route's load-balance
// policy (spec.md §4.8): random, weighted_random, round_robin, or first.
func (m Match) Pick() Endpoint {
	switch m.policy {
	case "first":
		return m.upstreams[0]
	case "round_robin":
		idx := atomic.AddUint64(m.counter, 1) - 1
		return m.upstreams[idx%uint64(len(m.upstreams))]
	case "weighted_random":
		return m.pickWeighted()
	default: // "random"
		return m.upstreams[rand.Intn(len(m.upstreams))]
	}
}

func (m Match) pickWeighted() Endpoint {
	total := 0
	for _, u := range m.upstreams {
		if u.Weight <= 0 {
			total++
		} else {
			total += u.Weight
		}
	}
	if total == 0 {
		return m.upstreams[rand.Intn(len(m.upstreams))]
	}

	target := rand.Intn(total)
	cum := 0
	for _, u := range m.upstreams {
		w := u.Weight
		if w <= 0 {
			w = 1
		}
		cum += w
		if target < cum {
			return u
		}
	}
	return m.upstreams[len(m.upstreams)-1]
}
