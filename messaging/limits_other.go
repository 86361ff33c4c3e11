// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !linux

package messaging

// processMemoryLimit has no portable source outside Linux cgroups; callers
// fall back to runtime.MemStats sizing.
func processMemoryLimit() int64 {
	return 0
}
