// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import "time"

// KeepaliveParams configures idle-connection probing. A ping is sent after
// the connection has been idle (no frame written or received) for
// IdleInterval; if
// MaxFailedProbes consecutive pings go unanswered within ProbeInterval
// each, the connection is torn down.
type KeepaliveParams struct {
	IdleInterval    time.Duration
	ProbeInterval   time.Duration
	MaxFailedProbes int
}

// DefaultKeepalive matches spec: probe every 60s of idleness, drop after
// 10 unanswered probes.
var DefaultKeepalive = KeepaliveParams{
	IdleInterval:    60 * time.Second,
	ProbeInterval:   60 * time.Second,
	MaxFailedProbes: 10,
}
