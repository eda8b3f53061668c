// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package metrics holds the Prometheus collectors describing polling cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chirp"

// Cycle outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeAuth    = "auth_error"
	OutcomeCache   = "cache_error"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics is a set of collectors registered on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Cycles             *prometheus.CounterVec
	ItemsFetched       *prometheus.CounterVec
	EntriesAccepted    *prometheus.CounterVec
	EntriesDelivered   *prometheus.CounterVec
	FetchFailures      *prometheus.CounterVec
	DeliveryFailures   *prometheus.CounterVec
	Watermark          prometheus.Gauge
	CycleDuration      prometheus.Histogram
	LastCycleTimestamp prometheus.Gauge
}

// New returns Metrics registered on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome.",
		}, []string{"outcome"}),
		ItemsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_fetched_total",
			Help:      "Items returned by fetches.",
		}, []string{"source"}),
		EntriesAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_accepted_total",
			Help:      "Items that passed the pattern and dedup filters.",
		}, []string{"source"}),
		EntriesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_delivered_total",
			Help:      "Entries marked delivered.",
		}, []string{"source"}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetches.",
		}, []string{"source"}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Messages the sink refused.",
		}, []string{"destination"}),
		Watermark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark",
			Help:      "Highest delivered item ID.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of polling cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		LastCycleTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last finished cycle.",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
