// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luxfi/messaging/rpc"
)

// fakeClient is a no-op rpc.Client that records whether Close was called,
// used to verify eviction-while-borrowed never closes a connection out
// from under an in-flight caller.
type fakeClient struct {
	closed bool
}

func (c *fakeClient) Call(ctx context.Context, method string, args, reply interface{}) error {
	return nil
}
func (c *fakeClient) CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return nil, nil
}
func (c *fakeClient) Notify(ctx context.Context, method string, args interface{}) error { return nil }
func (c *fakeClient) Closed() bool                                                      { return c.closed }
func (c *fakeClient) Stats() rpc.Stats                                                   { return rpc.Stats{} }
func (c *fakeClient) Close() error                                                      { c.closed = true; return nil }

func TestClientEntryEvictionWaitsForBorrowerRelease(t *testing.T) {
	fc := &fakeClient{}
	entry := &clientEntry{client: fc}

	handle := entry.acquire()

	entry.evicted.Store(true)
	if fc.closed {
		t.Fatal("marking an entry evicted must not close it while a borrower still holds it")
	}

	handle.Release()
	if !fc.closed {
		t.Error("the last borrower's Release should close an evicted entry")
	}
}

func TestClientRegistryEvictClosesUnreferencedEntryImmediately(t *testing.T) {
	fc := &fakeClient{}
	cfg := &Config{}
	r := newClientRegistry(cfg, nil, newPreferredIPCache(nil), Peer("127.0.0.1:7000"))

	key := clientKey{ip: "10.0.0.1:7000", slot: slotDefault}
	r.clients[key] = &clientEntry{peer: Peer("10.0.0.1:7000"), slot: slotDefault, client: fc}

	r.evict(key)
	if !fc.closed {
		t.Error("evicting an entry with no outstanding borrows should close it immediately")
	}
	if _, ok := r.clients[key]; ok {
		t.Error("evict should remove the entry from the registry map")
	}
}

func TestClientHandleReleaseIsIdempotent(t *testing.T) {
	fc := &fakeClient{}
	entry := &clientEntry{client: fc}
	handle := entry.acquire()

	handle.Release()
	handle.Release() // must not double-decrement refs or panic

	if entry.refs.Load() != 0 {
		t.Errorf("refs after two Release calls = %d, want 0", entry.refs.Load())
	}
}

func TestClientRegistryRemoveEvictsUnknownPeerIsNoop(t *testing.T) {
	cfg := &Config{}
	r := newClientRegistry(cfg, nil, newPreferredIPCache(nil), Peer("127.0.0.1:7000"))
	// No client was ever dialed for this peer; Remove must not panic.
	r.Remove(Peer("10.0.0.1:7000"))
}

// TestRemoveEvictsAllSlotsForPeer covers invariant 2: remove(p) evicts
// every pool slot for p, not just the one a single send happened to use,
// so the next send on any verb dials a fresh connection.
func TestRemoveEvictsAllSlotsForPeer(t *testing.T) {
	cfg := &Config{}
	r := newClientRegistry(cfg, nil, newPreferredIPCache(nil), Peer("127.0.0.1:7000"))
	peer := Peer("10.0.0.1:7000")

	keys := make([]clientKey, numSlots)
	for slot := 0; slot < numSlots; slot++ {
		keys[slot] = clientKey{ip: peer.cacheKey(), slot: slot}
		r.clients[keys[slot]] = &clientEntry{peer: peer, slot: slot, client: &fakeClient{}}
	}

	r.Remove(peer)

	for slot, key := range keys {
		if _, ok := r.clients[key]; ok {
			t.Errorf("Remove left slot %d still cached", slot)
		}
	}
}

// TestRemoveErrorLeavesHealthyClientCached covers invariant 1: get then
// remove_error on a handle that is not actually in error state must leave
// it cached, since a transport error racing a concurrent redial is no
// reason to discard a connection that is fine.
func TestRemoveErrorLeavesHealthyClientCached(t *testing.T) {
	fc := &fakeClient{}
	cfg := &Config{}
	r := newClientRegistry(cfg, nil, newPreferredIPCache(nil), Peer("127.0.0.1:7000"))
	peer := Peer("10.0.0.1:7000")
	key := clientKey{ip: peer.cacheKey(), slot: slotDefault}
	r.clients[key] = &clientEntry{peer: peer, slot: slotDefault, client: fc}

	r.RemoveError(peer, slotDefault, errors.New("boom"))

	if fc.closed {
		t.Error("RemoveError must not close a client that still reports Closed()==false")
	}
	if _, ok := r.clients[key]; !ok {
		t.Error("RemoveError must not evict a healthy client from the registry")
	}
}

// TestRemoveErrorEvictsClosedClient is RemoveErrorLeavesHealthyClientCached's
// mirror: once the cached client actually reports itself closed, the error
// path does evict it.
func TestRemoveErrorEvictsClosedClient(t *testing.T) {
	fc := &fakeClient{closed: true}
	cfg := &Config{}
	r := newClientRegistry(cfg, nil, newPreferredIPCache(nil), Peer("127.0.0.1:7000"))
	peer := Peer("10.0.0.1:7000")
	key := clientKey{ip: peer.cacheKey(), slot: slotDefault}
	r.clients[key] = &clientEntry{peer: peer, slot: slotDefault, client: fc}

	r.RemoveError(peer, slotDefault, errors.New("boom"))

	if _, ok := r.clients[key]; ok {
		t.Error("RemoveError should evict a client that reports itself closed")
	}
}

// TestGetEvictsCachedClosedClientBeforeRedialing covers Get's side of the
// same invariant: a cached entry whose client has gone bad on its own
// (read loop died, no one called RemoveError yet) must not be handed back
// to a caller — Get evicts it and dials a replacement instead.
func TestGetEvictsCachedClosedClientBeforeRedialing(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	client := newTestService(t, "127.0.0.1:0")
	peer := Peer(server.ListenAddr())

	stale := &fakeClient{closed: true}
	key := clientKey{ip: peer.cacheKey(), slot: slotDefault}
	client.clients.clients[key] = &clientEntry{peer: peer, slot: slotDefault, client: stale}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := client.clients.Get(ctx, peer, slotDefault)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer handle.Release()

	if handle.Client() == stale {
		t.Error("Get returned the stale closed client instead of dialing a fresh one")
	}

	client.clients.mu.Lock()
	replaced := client.clients.clients[key]
	client.clients.mu.Unlock()
	if replaced == nil || replaced.client == rpc.Client(stale) {
		t.Error("the registry should hold a freshly dialed entry for this key, not the stale one")
	}
}
