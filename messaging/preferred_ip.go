// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "sync"

// PreferredIPLoader resolves a node's preferred (typically same-rack or
// same-DC) address for dialing, consulted once per host and then cached,
// mirroring system_keyspace's load_peers_preferred_ip/peers table.
type PreferredIPLoader interface {
	PreferredIP(host string) (string, bool)
}

// preferredIPCache is messaging_service::_preferred_ip_cache: a small
// in-memory map from a peer's canonical host to the address it should
// actually be dialed on, populated lazily from a PreferredIPLoader and
// invalidated on demand (e.g. after gossip reports a topology change).
type preferredIPCache struct {
	mu     sync.RWMutex
	byHost map[string]string
	loader PreferredIPLoader
}

func newPreferredIPCache(loader PreferredIPLoader) *preferredIPCache {
	return &preferredIPCache{byHost: make(map[string]string), loader: loader}
}

// get returns the cached preferred address for host, populating the cache
// from the loader on first lookup if one is configured.
func (c *preferredIPCache) get(host string) (string, bool) {
	c.mu.RLock()
	addr, ok := c.byHost[host]
	c.mu.RUnlock()
	if ok {
		return addr, true
	}
	if c.loader == nil {
		return "", false
	}
	addr, ok = c.loader.PreferredIP(host)
	if !ok {
		return "", false
	}
	c.cache(host, addr)
	return addr, true
}

// cache records addr as host's preferred address, the Go analogue of
// cache_preferred_ip.
func (c *preferredIPCache) cache(host, addr string) {
	c.mu.Lock()
	c.byHost[host] = addr
	c.mu.Unlock()
}

// invalidate drops any cached preferred address for host, forcing the
// next lookup back through the loader.
func (c *preferredIPCache) invalidate(host string) {
	c.mu.Lock()
	delete(c.byHost, host)
	c.mu.Unlock()
}

// loadAll seeds the cache for every host the loader knows about up
// front, the Go analogue of init_local_preferred_ip_cache running once at
// startup instead of lazily per first send.
func (c *preferredIPCache) loadAll(hosts []string) {
	if c.loader == nil {
		return
	}
	for _, h := range hosts {
		if addr, ok := c.loader.PreferredIP(h); ok {
			c.cache(h, addr)
		}
	}
}
