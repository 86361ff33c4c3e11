// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "testing"

func TestDefaultResourceLimits(t *testing.T) {
	limits := defaultResourceLimits()

	if limits.BloatFactor != 3 {
		t.Errorf("BloatFactor = %d, want 3", limits.BloatFactor)
	}
	if limits.BasicRequestSize != 1000 {
		t.Errorf("BasicRequestSize = %d, want 1000", limits.BasicRequestSize)
	}
	if limits.MaxMemory < 1_000_000 {
		t.Errorf("MaxMemory = %d, want >= 1,000,000", limits.MaxMemory)
	}
}
