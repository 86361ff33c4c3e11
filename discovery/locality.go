// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

// LocalityOracle answers same-DC/same-rack questions against the shared
// Registry cache, satisfying messaging.LocalityOracle.
type LocalityOracle struct {
	reg  *Registry
	self NodeInfo
}

// NewLocalityOracle builds a LocalityOracle that judges locality relative
// to selfID's own registered datacenter/rack.
func NewLocalityOracle(reg *Registry, selfID string) *LocalityOracle {
	self, _ := reg.self(selfID)
	return &LocalityOracle{reg: reg, self: self}
}

// SameDC reports whether ip is registered in this node's datacenter.
func (o *LocalityOracle) SameDC(ip string) bool {
	peer, ok := o.reg.lookup(ip)
	if !ok {
		return false
	}
	return peer.Datacenter != "" && peer.Datacenter == o.self.Datacenter
}

// SameRack reports whether ip is registered in this node's rack. A peer
// outside this node's datacenter is never same-rack, even if the rack
// name happens to collide across datacenters.
func (o *LocalityOracle) SameRack(ip string) bool {
	peer, ok := o.reg.lookup(ip)
	if !ok {
		return false
	}
	return o.SameDC(ip) && peer.Rack != "" && peer.Rack == o.self.Rack
}
