// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

// MembershipOracle answers whether an address is still a registered
// cluster member, satisfying messaging.MembershipOracle. It is a thin
// view over the shared Registry cache, which a background watch keeps
// current without per-query etcd round-trips.
type MembershipOracle struct {
	reg *Registry
}

// NewMembershipOracle builds a MembershipOracle backed by reg.
func NewMembershipOracle(reg *Registry) *MembershipOracle {
	return &MembershipOracle{reg: reg}
}

// IsKnownEndpoint reports whether ip currently belongs to a registered
// node, the Go analogue of gms::gossiper::is_known_endpoint.
func (o *MembershipOracle) IsKnownEndpoint(ip string) bool {
	_, ok := o.reg.lookup(ip)
	return ok
}
