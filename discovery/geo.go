// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"fmt"

	"github.com/luxfi/messaging/geo"
)

// DistanceTo returns the great-circle distance in meters between selfID
// and ip, used to rank candidate peers (e.g. for read repair or hint
// routing) when no datacenter/rack metadata distinguishes them.
func (r *Registry) DistanceTo(selfID, ip string) (float64, error) {
	self, ok := r.self(selfID)
	if !ok {
		return 0, fmt.Errorf("discovery: unknown node id %q", selfID)
	}
	peer, ok := r.lookup(ip)
	if !ok {
		return 0, fmt.Errorf("discovery: unknown peer %q", ip)
	}
	return geo.Dist(self.Longitude, self.Latitude, peer.Longitude, peer.Latitude), nil
}

// NearestPeers returns every registered peer other than selfID, sorted by
// distance to it, ascending.
func (r *Registry) NearestPeers(selfID string) ([]NodeInfo, error) {
	self, ok := r.self(selfID)
	if !ok {
		return nil, fmt.Errorf("discovery: unknown node id %q", selfID)
	}

	r.mu.RLock()
	peers := make([]NodeInfo, 0, len(r.byID))
	for id, n := range r.byID {
		if id != selfID {
			peers = append(peers, n)
		}
	}
	r.mu.RUnlock()

	for i := 1; i < len(peers); i++ {
		for j := i; j > 0; j-- {
			di := geo.Dist(self.Longitude, self.Latitude, peers[j].Longitude, peers[j].Latitude)
			dprev := geo.Dist(self.Longitude, self.Latitude, peers[j-1].Longitude, peers[j-1].Latitude)
			if di < dprev {
				peers[j], peers[j-1] = peers[j-1], peers[j]
			} else {
				break
			}
		}
	}
	return peers, nil
}
