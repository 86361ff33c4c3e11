// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges a Service exports, the Go
// analogue of the scollectd/seastar metric groups messaging_service
// registers for each verb (sent totals, dropped totals, pending gauges).
type Metrics struct {
	sent    *prometheus.CounterVec
	dropped *prometheus.CounterVec
	pending *prometheus.GaugeVec
	retries *prometheus.CounterVec
}

// NewMetrics builds and registers a fresh Metrics set against reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a dedicated
// *prometheus.Registry in tests to avoid collisions between cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "messages_sent_total",
			Help:      "Messages sent per verb.",
		}, []string{"verb"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped per verb, e.g. because the client was in a permanent error state.",
		}, []string{"verb"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "messaging",
			Name:      "messages_pending",
			Help:      "In-flight requests per verb.",
		}, []string{"verb"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "send_retries_total",
			Help:      "SendWithRetry attempts beyond the first, per verb.",
		}, []string{"verb"}),
	}
	reg.MustRegister(m.sent, m.dropped, m.pending, m.retries)
	return m
}

func (m *Metrics) observeSend(v Verb) func() {
	if m == nil {
		return func() {}
	}
	label := v.String()
	m.sent.WithLabelValues(label).Inc()
	m.pending.WithLabelValues(label).Inc()
	return func() { m.pending.WithLabelValues(label).Dec() }
}

func (m *Metrics) observeDropped(v Verb) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(v.String()).Inc()
}

func (m *Metrics) observeRetry(v Verb) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(v.String()).Inc()
}
