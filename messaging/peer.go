// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"fmt"
	"net"
)

// PeerAddress identifies a remote party: an IP plus an opaque per-shard cpu
// id. Equality, ordering and hashing consider only IP — the source's own
// comment on msg_addr is "ignore cpu id for now since we do not really
// support shard to shard connections" — CPUID is carried through to
// handlers but never used for routing or connection-cache keys.
type PeerAddress struct {
	IP    string
	CPUID uint32
}

// Peer builds a PeerAddress with CPUID 0, the common case of addressing a
// whole node rather than one of its shards.
func Peer(ip string) PeerAddress {
	return PeerAddress{IP: ip}
}

// Equal reports whether x and y name the same peer, ignoring CPUID.
func (x PeerAddress) Equal(y PeerAddress) bool {
	return x.IP == y.IP
}

// Less orders two peers by IP only, ignoring CPUID, so PeerAddress can be
// used as a map key's comparison basis or sorted deterministically.
func (x PeerAddress) Less(y PeerAddress) bool {
	return x.IP < y.IP
}

// cacheKey is what the client/server registries actually key their maps
// on: IP only, matching msg_addr::hash's "ignore cpu id" contract and
// invariant 3 in spec §8 (equality/hash/ordering depend only on ip).
func (x PeerAddress) cacheKey() string {
	return x.IP
}

// String renders as "<ip>:<cpu>", matching operator<<(ostream&, msg_addr).
func (x PeerAddress) String() string {
	return fmt.Sprintf("%s:%d", x.IP, x.CPUID)
}

// host splits the bare host out of IP, which may carry a port
// ("10.0.0.1:7000") or be bare ("10.0.0.1"); used by the locality oracle
// and preferred-IP cache, which key on host only.
func (x PeerAddress) host() string {
	h, _, err := net.SplitHostPort(x.IP)
	if err != nil {
		return x.IP
	}
	return h
}
