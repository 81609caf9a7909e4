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

// Package admin is the fleet's operator-facing listener (component C14):
// it mounts the Prometheus scrape endpoint the core only ever feeds
// counters into, plus a small JSON status endpoint the CLI's status
// subcommand polls. Neither endpoint is reachable from the data plane
// listeners the fleet serves traffic on.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/sabouaram/monoproxy/internal/fleet"
	"github.com/sabouaram/monoproxy/internal/metrics"
)

// WorkerStatus is one worker's registered sites, as seen at snapshot time.
type WorkerStatus struct {
	WorkerID int          `json:"worker_id"`
	Sites    []SiteStatus `json:"sites"`
}

// SiteStatus is one site entry's committed/staged state on a single
// worker. Pool sizes live in the Prometheus registry rather than here;
// the status endpoint only reports lifecycle state a table view needs.
type SiteStatus struct {
	Name    string `json:"name"`
	Live    bool   `json:"live"`
	Staged  bool   `json:"staged"`
	Address string `json:"address"`
}

// Snapshot is the full body the /status endpoint serves.
type Snapshot struct {
	Workers []WorkerStatus `json:"workers"`
}

// Server is the admin HTTP listener. It is started once per fleet and
// torn down on the same shutdown path as the fleet's workers.
type Server struct {
	addr string
	f    *fleet.Fleet
	srv  *http.Server
}

// NewServer builds a Server bound to addr, reading site state from f on
// every /status request.
func NewServer(addr string, f *fleet.Fleet) *Server {
	s := &Server{addr: addr, f: f}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve blocks, running the admin listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = s.srv.Close()
	}()

	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) snapshot() Snapshot {
	workers := s.f.Workers()
	out := Snapshot{Workers: make([]WorkerStatus, 0, len(workers))}

	for _, w := range workers {
		ws := WorkerStatus{WorkerID: w.ID}
		for _, name := range w.Registry.List() {
			e, ok := w.Registry.Get(name)
			if !ok {
				continue
			}
			addr := ""
			if e.Listener != nil {
				addr = e.Listener.Addr().String()
			}
			ws.Sites = append(ws.Sites, SiteStatus{
				Name:    name,
				Live:    e.Committed(),
				Staged:  e.StagedPresent(),
				Address: addr,
			})
		}
		out.Workers = append(out.Workers, ws)
	}
	return out
}
