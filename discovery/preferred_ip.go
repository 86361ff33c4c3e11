// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

// PreferredIPLoader resolves a peer's preferred dial address from its
// registered NodeInfo, satisfying messaging.PreferredIPLoader. A node
// without a published PreferredAddr is dialed on its registered Addr.
type PreferredIPLoader struct {
	reg *Registry
}

// NewPreferredIPLoader builds a PreferredIPLoader backed by reg.
func NewPreferredIPLoader(reg *Registry) *PreferredIPLoader {
	return &PreferredIPLoader{reg: reg}
}

// PreferredIP returns host's preferred dial address, if registered.
func (l *PreferredIPLoader) PreferredIP(host string) (string, bool) {
	peer, ok := l.reg.lookup(host)
	if !ok || peer.PreferredAddr == "" {
		return "", false
	}
	return peer.PreferredAddr, true
}

// KnownHosts returns every host currently in the registry, for seeding
// messaging.WithPreferredIPLoader's up-front cache load.
func (l *PreferredIPLoader) KnownHosts() []string {
	l.reg.mu.RLock()
	defer l.reg.mu.RUnlock()
	hosts := make([]string, 0, len(l.reg.byIP))
	for ip := range l.reg.byIP {
		hosts = append(hosts, ip)
	}
	return hosts
}
