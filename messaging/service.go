// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package messaging implements the peer-to-peer RPC substrate nodes in a
// cluster use to talk to each other: a verb taxonomy partitioned across a
// small number of pooled connections per peer, lazy client creation with
// shared-borrow eviction, TLS/compression/keepalive policy resolved per
// peer, and a retrying send path for verbs that must eventually land.
package messaging

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/messaging/rpc"
)

// Service is one node's messaging endpoint: it owns the client and server
// registries, the handler table, and the send/retry machinery built on
// top of them. It is the Go analogue of messaging_service.
type Service struct {
	cfg *Config
	log *zap.Logger

	handlers *HandlerRegistry
	clients  *ClientRegistry
	servers  *ServerRegistry
	metrics  *Metrics
	pref     *preferredIPCache

	localAddr PeerAddress

	// mu guards stopped against the enter/leave pair Send/SendOneway wrap
	// every call in: Stop takes mu, marks stopped, and only then waits on
	// inFlight, so no call that observed stopped==false can fail to have
	// already registered itself in inFlight by the time Wait runs.
	mu       sync.Mutex
	stopped  bool
	inFlight sync.WaitGroup

	// stopCh is closed exactly once, by Stop, so a SendWithRetry sleeping
	// between attempts wakes up immediately instead of riding out the
	// full retry wait.
	stopCh chan struct{}
}

// Option configures NewService.
type Option func(*Service)

// WithLogger overrides the default production zap logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetricsRegisterer registers this Service's metrics against reg
// instead of prometheus.DefaultRegisterer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = NewMetrics(reg) }
}

// WithPreferredIPLoader wires a loader used to resolve a peer's
// preferred dial address, seeded once at construction time the way
// init_local_preferred_ip_cache runs during node startup.
func WithPreferredIPLoader(loader PreferredIPLoader, knownHosts []string) Option {
	return func(s *Service) {
		s.pref = newPreferredIPCache(loader)
		s.pref.loadAll(knownHosts)
	}
}

// NewService constructs a Service from cfg. If cfg.ListenNow is set, it
// starts listening before returning, the Go analogue of constructing
// messaging_service with listen_now = true; otherwise the caller must
// call StartListen explicitly once the rest of the node is ready.
func NewService(cfg *Config, localAddr PeerAddress, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		log:       defaultLogger(),
		handlers:  newHandlerRegistry(),
		localAddr: localAddr,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	if s.pref == nil {
		s.pref = newPreferredIPCache(nil)
	}

	s.clients = newClientRegistry(cfg, s.log, s.pref, localAddr)
	s.servers = newServerRegistry(cfg, s.log, s.handlers)

	if cfg.ListenNow {
		if err := s.StartListen(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// StartListen opens the configured listeners. Safe to call once; later
// calls are a no-op.
func (s *Service) StartListen() error {
	return s.servers.StartListen()
}

// RegisterHandler installs handler for verb. Handlers may be registered
// at any time, including after StartListen; an incoming request for a
// verb with no handler yet simply fails that one call.
func (s *Service) RegisterHandler(verb Verb, handler Handler) {
	s.handlers.Register(verb, handler)
}

// UnregisterHandler removes verb's handler.
func (s *Service) UnregisterHandler(verb Verb) {
	s.handlers.Unregister(verb)
}

// LocalAddress returns the address this Service identifies itself as in
// the CLIENT_ID handshake.
func (s *Service) LocalAddress() PeerAddress { return s.localAddr }

// ListenAddr returns the primary listener's actual address, useful when
// Config.ListenAddress used an ephemeral port.
func (s *Service) ListenAddr() string { return s.servers.Addr() }

// ForEachClient enumerates pooled outbound connections, the Go analogue
// of messaging_service::foreach_client.
func (s *Service) ForEachClient(f func(peer PeerAddress, slot int, client rpc.Client)) {
	s.clients.ForEach(f)
}

// RemovePeer drops every pooled connection to peer across all pool slots,
// the Go analogue of messaging_service::remove_rpc_client(msg_addr).
// Callers use this when they learn through some other channel (gossip,
// a membership change) that the existing connections are stale; the next
// Send to peer on any verb dials a fresh one.
func (s *Service) RemovePeer(peer PeerAddress) {
	s.clients.Remove(peer)
}

// ForEachServerConnection enumerates accepted inbound connections across
// every listener, the Go analogue of foreach_server_connection_stats.
func (s *Service) ForEachServerConnection(f func(*rpc.ClientInfo, rpc.Stats)) {
	s.servers.ForEachConnectionStats(f)
}

// CachePreferredIP records addr as host's preferred dial address.
func (s *Service) CachePreferredIP(host, addr string) {
	s.pref.cache(host, addr)
}

// InvalidatePreferredIP drops any cached preferred address for host.
func (s *Service) InvalidatePreferredIP(host string) {
	s.pref.invalidate(host)
}

// LoadPreferredIPs seeds the preferred-IP cache for every host in hosts
// from the configured loader, the Go analogue of
// init_local_preferred_ip_cache. WithPreferredIPLoader already does this
// once at construction; LoadPreferredIPs lets a caller re-run the same
// seeding later, e.g. after a topology change is detected.
func (s *Service) LoadPreferredIPs(hosts []string) {
	s.pref.loadAll(hosts)
}

// RawVersion reports the protocol version this Service speaks. The source
// this is modeled on never implemented real per-peer version negotiation
// (its own comment reads "FIXME: messaging service versioning"), so this
// stays a constant rather than inventing a handshake the original never
// had.
func (s *Service) RawVersion() int32 { return 1 }

// KnowsVersion reports whether peer is known to speak at least version.
// Absent real negotiation, every peer is assumed compatible.
func (s *Service) KnowsVersion(peer PeerAddress, version int32) bool { return true }

// checkNotStopped guards Send* entry points against racing Stop.
func (s *Service) checkNotStopped() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	return nil
}

// enter admits one in-flight call, failing with ErrStopped if Stop has
// already been called. It must be paired with a call to leave.
func (s *Service) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.inFlight.Add(1)
	return nil
}

func (s *Service) leave() {
	s.inFlight.Done()
}

// Stop closes every listener and pooled outbound connection. It first
// marks the service stopped, refusing any new Send*, then closes stopCh
// (waking any SendWithRetry sleeping between attempts) and waits for
// every already-admitted call to finish before tearing down the
// registries — so a Send in flight when Stop is called is allowed to run
// to completion rather than having its connection yanked out from under
// it. Safe to call more than once; only the first call has any effect.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.inFlight.Wait()

	s.servers.Stop()
	s.clients.CloseAll()
}
