// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exports ranking activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/candirank/core"
	"github.com/poiesic/candirank/ranking"
)

const namespace = "candirank"

// Monitor is a ranking.Monitor backed by Prometheus collectors.
type Monitor struct {
	QueriesTotal    *prometheus.CounterVec
	WindowsTotal    prometheus.Counter
	EarlyStopsTotal prometheus.Counter
	CandidatesFound prometheus.Histogram
	EntriesSearched prometheus.Histogram
	QueryDuration   prometheus.Histogram
	QueriesInFlight prometheus.Gauge

	started sync.Map // *core.Entry -> time.Time
}

var _ ranking.Monitor = (*Monitor)(nil)

// New creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Monitor, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Monitor{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total ranked queries by outcome (matched, unmatched, failed).",
			},
			[]string{"outcome"},
		),
		WindowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "windows_total",
				Help:      "Total search windows examined.",
			},
		),
		EarlyStopsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "early_stops_total",
				Help:      "Total searches ended by the early-stop rule.",
			},
		),
		CandidatesFound: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "candidates_found",
				Help:      "Number of matches returned per query.",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		EntriesSearched: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "entries_searched",
				Help:      "Number of index entries examined per query.",
				Buckets:   prometheus.ExponentialBuckets(4, 2, 12),
			},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Time spent ranking one query.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		QueriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queries_in_flight",
				Help:      "Number of queries currently being searched.",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.QueriesTotal,
		m.WindowsTotal,
		m.EarlyStopsTotal,
		m.CandidatesFound,
		m.EntriesSearched,
		m.QueryDuration,
		m.QueriesInFlight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start implements ranking.Monitor.
func (m *Monitor) Start(query *core.Entry) {
	m.started.Store(query, time.Now())
	m.QueriesInFlight.Inc()
}

// AfterWindow implements ranking.Monitor.
func (m *Monitor) AfterWindow(_ *core.Entry, _, _, _ int) {
	m.WindowsTotal.Inc()
}

// EarlyStop implements ranking.Monitor.
func (m *Monitor) EarlyStop(_ *core.Entry, _ int) {
	m.EarlyStopsTotal.Inc()
}

// Finish implements ranking.Monitor.
func (m *Monitor) Finish(query *core.Entry, result *core.QueryResult) {
	outcome := "matched"
	if len(result.Matches) == 0 {
		outcome = "unmatched"
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.CandidatesFound.Observe(float64(len(result.Matches)))
	m.EntriesSearched.Observe(float64(result.NumSearched))
	m.end(query)
}

// Fail implements ranking.Monitor.
func (m *Monitor) Fail(query *core.Entry, _ error) {
	m.QueriesTotal.WithLabelValues("failed").Inc()
	m.end(query)
}

// end closes the in-flight record opened by Start. Records are keyed by
// entry pointer so queries sharing an ID do not collide.
func (m *Monitor) end(query *core.Entry) {
	if v, ok := m.started.LoadAndDelete(query); ok {
		m.QueryDuration.Observe(time.Since(v.(time.Time)).Seconds())
		m.QueriesInFlight.Dec()
	}
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a custom gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
