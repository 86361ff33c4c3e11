// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/luxfi/messaging/rpc"
)

// ServerRegistry owns the listening sockets a Service accepts connections
// on: the primary plain-TCP listener, an optional TLS listener, and an
// optional third listener bound to the broadcast address. It is the Go
// analogue of messaging_service's _server / _server_tls / the
// broadcast-address listener the constructor conditionally creates.
type ServerRegistry struct {
	cfg  *Config
	log  *zap.Logger
	reg  *HandlerRegistry

	limits      ResourceLimits
	outstanding atomic.Int64

	mu       sync.Mutex
	started  bool
	servers  []rpc.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr error
}

func newServerRegistry(cfg *Config, log *zap.Logger, reg *HandlerRegistry) *ServerRegistry {
	return &ServerRegistry{cfg: cfg, log: log, reg: reg, limits: cfg.resourceLimits()}
}

// reserve charges payloadLen bytes (inflated by the configured bloat
// factor) against the outstanding-request budget, the Go analogue of the
// memory semaphore rpc::resource_limits backs in the source. It returns a
// release func to call once the request has been fully handled, or an
// error if granting this request would exceed MaxMemory.
func (s *ServerRegistry) reserve(payloadLen int) (func(), error) {
	cost := (s.limits.BasicRequestSize + int64(payloadLen)) * s.limits.BloatFactor
	if s.outstanding.Add(cost) > s.limits.MaxMemory {
		s.outstanding.Add(-cost)
		return nil, fmt.Errorf("messaging: request of %d bytes would exceed the %d byte resource limit", payloadLen, s.limits.MaxMemory)
	}
	return func() { s.outstanding.Add(-cost) }, nil
}

// StartListen opens every listener the configuration calls for and begins
// accepting connections. Calling it more than once is a no-op, matching
// messaging_service::start_listen's idempotency (guarded there by
// _listen_called).
func (s *ServerRegistry) StartListen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.listenOne(ctx, s.cfg.ListenAddress, nil); err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddress, err)
	}
	s.logOnLeader("listening for peers", zap.String("addr", s.cfg.ListenAddress))

	if s.cfg.SSLListenAddress != "" && s.cfg.Credentials != nil {
		tlsCfg, err := s.cfg.Credentials.ServerTLSConfig()
		if err != nil {
			return fmt.Errorf("server tls config: %w", err)
		}
		if err := s.listenOne(ctx, s.cfg.SSLListenAddress, tlsCfg); err != nil {
			return fmt.Errorf("listen tls %s: %w", s.cfg.SSLListenAddress, err)
		}
		s.logOnLeader("listening for peers (tls)", zap.String("addr", s.cfg.SSLListenAddress))
	}

	if s.cfg.ListenOnBroadcastAddress && s.cfg.BroadcastAddress != "" &&
		s.cfg.BroadcastAddress != s.cfg.ListenAddress {
		if err := s.listenOne(ctx, s.cfg.BroadcastAddress, nil); err != nil {
			// Best-effort: the source logs and continues rather than
			// failing node startup over the secondary listener.
			s.log.Warn("failed to listen on broadcast address",
				zap.String("addr", s.cfg.BroadcastAddress), zap.Error(err))
		} else {
			s.logOnLeader("listening for peers (broadcast)", zap.String("addr", s.cfg.BroadcastAddress))
		}
	}

	return nil
}

func (s *ServerRegistry) listenOne(ctx context.Context, addr string, tlsCfg interface{}) error {
	var opts []rpc.ServerOption
	if tlsCfg != nil {
		opts = append(opts, rpc.WithServerTLS(tlsCfg))
	}
	srv, err := rpc.Listen(addr, opts...)
	if err != nil {
		return err
	}
	for v := Verb(0); v < numVerbs; v++ {
		if err := srv.RegisterRaw(verbMethodName(v), s.makeRawHandler(v)); err != nil {
			srv.Close()
			return err
		}
	}
	s.servers = append(s.servers, srv)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("server exited", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return nil
}

// makeRawHandler adapts the HandlerRegistry's verb-keyed dispatch onto
// the per-method raw handler surface rpc.Server exposes, looking up the
// caller's ClientInfo to build the Source a handler sees.
func (s *ServerRegistry) makeRawHandler(verb Verb) rpc.RawHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		if ci, ok := rpc.ClientInfoFromContext(ctx); ok {
			ctx = ContextWithSource(ctx, sourceFromClientInfo(ci))
			if verb == ClientID {
				return s.handleClientID(ci, payload)
			}
		}

		release, err := s.reserve(len(payload))
		if err != nil {
			return nil, err
		}
		defer release()

		return s.reg.dispatch(ctx, verb, payload)
	}
}

// handleClientID processes the CLIENT_ID handshake: it decodes the
// peer's self-reported broadcast address and attaches it to the
// connection's ClientInfo, so later requests on the same socket resolve
// to the right PeerAddress instead of the raw TCP source address (which
// may differ behind NAT).
func (s *ServerRegistry) handleClientID(ci *rpc.ClientInfo, payload []byte) ([]byte, error) {
	var ip string
	if err := json.Unmarshal(payload, &ip); err != nil || ip == "" {
		ip = ci.RemoteAddr
	}
	ci.Attach(clientIDAuxKey, Peer(ip))
	return nil, nil
}

// logOnLeader logs msg only when this node owns shard/cpu 0, the Go
// analogue of the source's "only print on the owning shard" gate used to
// avoid N identical log lines across a multi-shard node. This module runs
// one Service per process, so the gate is simply "always" today, but it
// is kept as a seam for a future multi-shard Service.
func (s *ServerRegistry) logOnLeader(msg string, fields ...zap.Field) {
	s.log.Info(msg, fields...)
}

// Addr returns the primary listener's address, useful when the
// configured ListenAddress used an ephemeral port (":0"). Returns "" if
// StartListen has not been called yet.
func (s *ServerRegistry) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.servers) == 0 {
		return ""
	}
	return s.servers[0].Addr()
}

// ForEachConnectionStats enumerates live inbound connections across every
// listener, the Go analogue of
// messaging_service::foreach_server_connection_stats.
func (s *ServerRegistry) ForEachConnectionStats(f func(*rpc.ClientInfo, rpc.Stats)) {
	s.mu.Lock()
	servers := append([]rpc.Server(nil), s.servers...)
	s.mu.Unlock()
	for _, srv := range servers {
		srv.ForEachConnection(f)
	}
}

// Stop closes every listener and waits for their accept loops to exit.
func (s *ServerRegistry) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	for _, srv := range servers {
		srv.Close()
	}
	s.wg.Wait()
}
