// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "runtime"

// ResourceLimits bounds the memory the RPC subsystem is allowed to hold for
// in-flight requests, the Go analogue of rpc::resource_limits.
type ResourceLimits struct {
	// BasicRequestSize is the assumed per-request overhead before the
	// payload itself, used to size the memory budget conservatively.
	BasicRequestSize int64
	// BloatFactor multiplies BasicRequestSize+len(payload) to account for
	// serializer overhead.
	BloatFactor int64
	// MaxMemory is the ceiling on total outstanding request memory.
	MaxMemory int64
}

// defaultResourceLimits mirrors rpc_resource_limits(): bloat_factor = 3,
// basic_request_size = 1000, max_memory = max(8% of process memory, 1MB).
// The ceiling is a fraction of the process budget, not a constant, so a
// large node does not starve its RPC subsystem.
func defaultResourceLimits() ResourceLimits {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	total := int64(mem.Sys)
	if limit := processMemoryLimit(); limit > 0 && limit < total {
		total = limit
	}
	if total <= 0 {
		total = 1 << 30 // 1GB fallback when the runtime can't tell us anything
	}
	budget := int64(float64(total) * 0.08)
	if budget < 1_000_000 {
		budget = 1_000_000
	}
	return ResourceLimits{
		BasicRequestSize: 1000,
		BloatFactor:      3,
		MaxMemory:        budget,
	}
}
