// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/luxfi/messaging/rpc"
)

// clientEntry is a shared, refcounted RPC client. Multiple in-flight calls
// can hold a borrow on the same entry; evicting it from the registry (on
// error, or because the peer left the cluster) only marks it for close —
// the underlying connection stays alive until the last borrower releases
// it, so an in-flight call never has its connection yanked out from under
// it.
type clientEntry struct {
	peer   PeerAddress
	slot   int
	client rpc.Client

	refs    atomic.Int64
	evicted atomic.Bool
}

func (e *clientEntry) acquire() *ClientHandle {
	e.refs.Add(1)
	return &ClientHandle{entry: e}
}

func (e *clientEntry) release() {
	if e.refs.Add(-1) == 0 && e.evicted.Load() {
		e.client.Close()
	}
}

// ClientHandle is a borrowed reference to a pooled client. Callers must
// call Release exactly once when done with it.
type ClientHandle struct {
	entry    *clientEntry
	released atomic.Bool
}

// Client returns the underlying protocol-agnostic RPC client.
func (h *ClientHandle) Client() rpc.Client { return h.entry.client }

// Release returns the borrow to the registry. Safe to call more than
// once; only the first call has any effect.
func (h *ClientHandle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.entry.release()
	}
}

// clientKey identifies one pooled connection: a peer plus the pool slot
// the verb being sent belongs to, so control-plane and data-plane traffic
// to the same peer never share a socket.
type clientKey struct {
	ip   string
	slot int
}

// ClientRegistry lazily creates and pools outbound connections, the Go
// analogue of messaging_service::_clients. One registry instance is owned
// by a Service.
type ClientRegistry struct {
	cfg       *Config
	log       *zap.Logger
	localAddr PeerAddress

	mu      sync.Mutex
	clients map[clientKey]*clientEntry

	preferredIP *preferredIPCache
}

func newClientRegistry(cfg *Config, log *zap.Logger, pref *preferredIPCache, localAddr PeerAddress) *ClientRegistry {
	return &ClientRegistry{
		cfg:         cfg,
		log:         log,
		localAddr:   localAddr,
		clients:     make(map[clientKey]*clientEntry),
		preferredIP: pref,
	}
}

// Get returns a borrowed handle to the pooled client for peer on slot,
// dialing a fresh connection if none exists yet. A cached entry whose
// client reports itself closed (its read loop died without anyone
// calling RemoveError yet) is evicted and replaced rather than handed
// back. The caller must Release the handle when done.
func (r *ClientRegistry) Get(ctx context.Context, peer PeerAddress, slot int) (*ClientHandle, error) {
	key := clientKey{ip: peer.cacheKey(), slot: slot}

	r.mu.Lock()
	entry, ok := r.clients[key]
	if ok && !entry.client.Closed() {
		h := entry.acquire()
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()
	if ok {
		r.evict(key)
	}

	client, err := r.dial(ctx, peer)
	if err != nil {
		// A peer that refuses or never answers a dial is, from the retry
		// loop's perspective, no different from one whose connection just
		// closed: both are safe to retry against a membership check, so
		// wrap it as a transport error rather than a distinct class.
		return nil, fmt.Errorf("dial %s: %w: %w", peer, rpc.ErrClosed, err)
	}
	if err := client.Notify(ctx, verbMethodName(ClientID), r.localAddr.IP); err != nil {
		// A handshake failure on a fresh connection means the socket is
		// already unusable; don't pool it.
		client.Close()
		return nil, fmt.Errorf("client id handshake with %s: %w: %w", peer, rpc.ErrClosed, err)
	}

	entry = &clientEntry{peer: peer, slot: slot, client: client}
	r.mu.Lock()
	if existing, ok := r.clients[key]; ok {
		// Another goroutine raced us and won; use theirs, discard ours.
		r.mu.Unlock()
		client.Close()
		h := existing.acquire()
		return h, nil
	}
	r.clients[key] = entry
	r.mu.Unlock()

	return entry.acquire(), nil
}

// dial resolves the peer's preferred IP (if this node has cached one from
// a prior gossip round), and opens a new connection with the TLS,
// compression and keepalive settings the configured policies call for.
func (r *ClientRegistry) dial(ctx context.Context, peer PeerAddress) (rpc.Client, error) {
	addr := peer.IP
	if r.preferredIP != nil {
		if pref, ok := r.preferredIP.get(peer.host()); ok {
			addr = pref
		}
	}

	keepalive := r.cfg.Keepalive
	if keepalive == (rpc.KeepaliveParams{}) {
		keepalive = rpc.DefaultKeepalive
	}

	opts := []rpc.DialOption{
		rpc.WithClientKeepalive(keepalive),
		rpc.WithClientNoDelay(r.cfg.noDelay(peer.host())),
	}

	if r.cfg.mustEncrypt(peer.host()) && r.cfg.Credentials != nil {
		tlsCfg, err := r.cfg.Credentials.ClientTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("client tls config: %w", err)
		}
		opts = append(opts, rpc.WithClientTLS(tlsCfg))
	} else if r.cfg.mustEncrypt(peer.host()) {
		// Policy demands encryption but no credentials builder is wired;
		// dial TLS anyway, without verifying the peer's certificate, rather
		// than silently dialing in the clear.
		opts = append(opts, rpc.WithClientTLS(&tls.Config{InsecureSkipVerify: true}))
	}

	if r.cfg.mustCompress(peer.host()) {
		opts = append(opts, rpc.WithClientCompressor(rpc.DefaultCompressorFactory))
	}

	return rpc.Dial(ctx, addr, opts...)
}

// RemoveSlot evicts the pooled client for peer/slot without logging, used
// when a caller wants to force a fresh connection on the next send (e.g.
// after changing TLS policy) but the current one isn't known to be
// broken.
func (r *ClientRegistry) RemoveSlot(peer PeerAddress, slot int) {
	r.evict(clientKey{ip: peer.cacheKey(), slot: slot})
}

// Remove evicts every pooled client for peer across all pool slots, the
// Go analogue of messaging_service::remove_rpc_client(msg_addr). Each
// evicted entry is closed asynchronously as soon as its last borrower
// releases it; Remove itself does not wait for that to happen, matching
// the source's "fire off the stop, don't block the caller on it".
func (r *ClientRegistry) Remove(peer PeerAddress) {
	for slot := 0; slot < numSlots; slot++ {
		r.evict(clientKey{ip: peer.cacheKey(), slot: slot})
	}
}

// RemoveError evicts the pooled client for peer/slot after a transport
// error, logging at the configured level the way
// messaging_service::remove_error_rpc_client does. It only evicts when
// the currently cached entry's client actually reports itself closed —
// a transport error racing a concurrent redial must not evict a client
// that has since recovered or been replaced.
func (r *ClientRegistry) RemoveError(peer PeerAddress, slot int, err error) {
	key := clientKey{ip: peer.cacheKey(), slot: slot}

	r.mu.Lock()
	entry, ok := r.clients[key]
	if !ok || !entry.client.Closed() {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if r.log != nil {
		r.log.Info("dropping client after transport error",
			zap.Stringer("peer", peer), zap.Int("slot", slot), zap.Error(err))
	}
	r.evict(key)
}

func (r *ClientRegistry) evict(key clientKey) {
	r.mu.Lock()
	entry, ok := r.clients[key]
	if ok {
		delete(r.clients, key)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	entry.evicted.Store(true)
	if entry.refs.Load() == 0 {
		entry.client.Close()
	}
}

// ForEach invokes f for every currently pooled client, used for
// diagnostics (foreach_client in the source).
func (r *ClientRegistry) ForEach(f func(peer PeerAddress, slot int, client rpc.Client)) {
	r.mu.Lock()
	entries := make([]*clientEntry, 0, len(r.clients))
	for _, e := range r.clients {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		f(e.peer, e.slot, e.client)
	}
}

// CloseAll evicts and closes every pooled client, called from
// Service.Stop.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	keys := make([]clientKey, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	for _, k := range keys {
		r.evict(k)
	}
}
