// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "testing"

func TestPeerAddressEqualityIgnoresCPUID(t *testing.T) {
	a := PeerAddress{IP: "10.0.0.1", CPUID: 0}
	b := PeerAddress{IP: "10.0.0.1", CPUID: 3}

	if !a.Equal(b) {
		t.Errorf("expected %v to equal %v (cpuid ignored)", a, b)
	}
	if a.Less(b) || b.Less(a) {
		t.Errorf("expected %v and %v to compare equal under Less", a, b)
	}
	if a.cacheKey() != b.cacheKey() {
		t.Errorf("cacheKey should ignore cpuid: %q != %q", a.cacheKey(), b.cacheKey())
	}
}

func TestPeerAddressOrdering(t *testing.T) {
	a := Peer("10.0.0.1")
	b := Peer("10.0.0.2")
	if !a.Less(b) || b.Less(a) {
		t.Errorf("expected %v < %v", a, b)
	}
}

func TestPeerAddressHost(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1":      "10.0.0.1",
		"10.0.0.1:7000": "10.0.0.1",
	}
	for ip, want := range cases {
		if got := Peer(ip).host(); got != want {
			t.Errorf("Peer(%q).host() = %q, want %q", ip, got, want)
		}
	}
}
