// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	done := m.observeSend(GossipEcho)
	done()
	m.observeDropped(GossipEcho)
	m.observeRetry(GossipEcho)
}

func TestMetricsObserveSendTracksPending(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	done := m.observeSend(GossipEcho)
	if got := testutil.ToFloat64(m.pending.WithLabelValues(GossipEcho.String())); got != 1 {
		t.Errorf("pending after observeSend = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.pending.WithLabelValues(GossipEcho.String())); got != 0 {
		t.Errorf("pending after the returned closure runs = %v, want 0", got)
	}
}

func TestMetricsObserveDroppedAndRetryIncrement(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.observeDropped(GossipDigestSyn)
	m.observeDropped(GossipDigestSyn)
	if got := testutil.ToFloat64(m.dropped.WithLabelValues(GossipDigestSyn.String())); got != 2 {
		t.Errorf("dropped count = %v, want 2", got)
	}

	m.observeRetry(GossipDigestSyn)
	if got := testutil.ToFloat64(m.retries.WithLabelValues(GossipDigestSyn.String())); got != 1 {
		t.Errorf("retry count = %v, want 1", got)
	}
}
