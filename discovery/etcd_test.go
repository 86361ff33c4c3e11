// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import "testing"

func TestHostOfStripsPort(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1:7000": "10.0.0.1",
		"10.0.0.1":      "10.0.0.1",
		"[::1]:7000":    "[::1]",
	}
	for addr, want := range cases {
		if got := hostOf(addr); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestRegistryLookupAndSelfOnEmptyRegistry(t *testing.T) {
	r := &Registry{byID: make(map[string]NodeInfo), byIP: make(map[string]NodeInfo)}

	if _, ok := r.lookup("10.0.0.1"); ok {
		t.Error("lookup on empty registry should report not found")
	}
	if _, ok := r.self("node-a"); ok {
		t.Error("self on empty registry should report not found")
	}

	r.byID["node-a"] = NodeInfo{ID: "node-a", Addr: "10.0.0.1:7000"}
	r.byIP["10.0.0.1"] = r.byID["node-a"]

	if _, ok := r.lookup("10.0.0.1"); !ok {
		t.Error("lookup should find a node seeded directly into byIP")
	}
	if info, ok := r.self("node-a"); !ok || info.Addr != "10.0.0.1:7000" {
		t.Errorf("self(%q) = %+v, %v, want the seeded node", "node-a", info, ok)
	}
}
