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

// Package metrics exposes the fleet's Prometheus gauges and counters:
// accepted/active connections per site, idle pool size per upstream key,
// worker command latency, and response status-class counts. Grounded on
// the corpus's own metrics package pattern (package-level collectors
// registered in init, a Timer helper for histogram observation) rather
// than a hand-rolled counter map.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monoproxy_connections_accepted_total",
			Help: "Total number of accepted connections by site",
		},
		[]string{"site"},
	)

	ConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monoproxy_connections_active",
			Help: "Currently open connections by site",
		},
		[]string{"site"},
	)

	UpstreamPoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monoproxy_upstream_pool_idle",
			Help: "Idle pooled connections by upstream connect key",
		},
		[]string{"site", "upstream"},
	)

	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monoproxy_worker_command_duration_seconds",
			Help:    "Time taken by a worker to apply a fleet command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monoproxy_responses_total",
			Help: "Total number of responses by site and status class",
		},
		[]string{"site", "class"},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsAccepted)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(UpstreamPoolSize)
	prometheus.MustRegister(CommandLatency)
	prometheus.MustRegister(ResponsesTotal)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for later histogram observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// StatusClass buckets an HTTP status code into its "NXX" class string,
// the label ResponsesTotal is keyed on.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
