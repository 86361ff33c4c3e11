// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"os"
	"strconv"
	"strings"
)

// processMemoryLimit reads the cgroup v2 memory ceiling, if any, so a
// containerized node sizes its RPC memory budget off its actual quota
// rather than the host's total RAM. Returns 0 when no limit is readable.
func processMemoryLimit() int64 {
	data, err := os.ReadFile("/sys/fs/cgroup/memory.max")
	if err != nil {
		return 0
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0
	}
	limit, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return limit
}
