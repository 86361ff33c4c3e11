// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "testing"

func TestPoolSlotPartitionsControlVerbs(t *testing.T) {
	control := map[Verb]bool{
		GossipDigestSyn:  true,
		GossipDigestAck2: true,
		GossipShutdown:   true,
		GossipEcho:       true,
	}

	for v := Verb(0); v < numVerbs; v++ {
		got := poolSlot(v)
		want := slotDefault
		if control[v] {
			want = slotControl
		}
		if got != want {
			t.Errorf("poolSlot(%s) = %d, want %d", v, got, want)
		}
	}
}

func TestPoolSlotExcludesPlainAck(t *testing.T) {
	// GOSSIP_DIGEST_ACK (not ACK2) deliberately shares the default slot
	// with the data path rather than the control slot.
	if poolSlot(GossipDigestAck) != slotDefault {
		t.Errorf("GossipDigestAck should be on slotDefault")
	}
}

func TestVerbStringUnknown(t *testing.T) {
	if got := Verb(999).String(); got != "UNKNOWN_VERB" {
		t.Errorf("String() = %q, want UNKNOWN_VERB", got)
	}
}
