// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/luxfi/messaging/rpc"
)

func newTestService(t *testing.T, listenAddr string) *Service {
	t.Helper()
	cfg := &Config{ListenAddress: listenAddr, ListenNow: true}
	svc, err := NewService(cfg, Peer(listenAddr),
		WithLogger(zap.NewNop()),
		WithMetricsRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

type schemaRequest struct {
	Keyspace string
}

type schemaResponse struct {
	Version string
}

func TestSendRoundTrip(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	server.RegisterHandler(GetSchemaVersion, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"Version":"v1"}`), nil
	})

	client := newTestService(t, "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, Peer(server.ListenAddr()), schemaRequest{Keyspace: "ks"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Version != "v1" {
		t.Errorf("Version = %q, want v1", resp.Version)
	}
}

func TestSendOneway(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")

	received := make(chan struct{}, 1)
	server.RegisterHandler(GossipEcho, func(ctx context.Context, payload []byte) ([]byte, error) {
		received <- struct{}{}
		return nil, nil
	})

	client := newTestService(t, "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SendOneway[struct{}](ctx, client, GossipEcho, Peer(server.ListenAddr()), struct{}{}); err != nil {
		t.Fatalf("SendOneway: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestSendAfterStopReturnsErrStopped(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	client := newTestService(t, "127.0.0.1:0")
	client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, Peer(server.ListenAddr()), schemaRequest{})
	if err != ErrStopped {
		t.Errorf("Send after Stop = %v, want ErrStopped", err)
	}
}

func TestSendNoHandlerReturnsError(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	client := newTestService(t, "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, Peer(server.ListenAddr()), schemaRequest{})
	if err == nil {
		t.Fatal("expected an error for an unregistered verb")
	}
}

// TestTransportFailureEvictsClient covers a server that drops the
// connection out from under a live client: the next send against the same
// peer must fail with a transport error, bump the dropped counter for that
// verb, and find no stale pooled client left behind.
func TestTransportFailureEvictsClient(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	server.RegisterHandler(GetSchemaVersion, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"Version":"v1"}`), nil
	})

	client := newTestService(t, "127.0.0.1:0")
	peer := Peer(server.ListenAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, peer, schemaRequest{}); err != nil {
		t.Fatalf("priming send: %v", err)
	}

	server.servers.Stop()

	if _, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, peer, schemaRequest{}); err == nil {
		t.Fatal("send against a server that dropped the connection should fail")
	}

	if got := testutil.ToFloat64(client.metrics.dropped.WithLabelValues(GetSchemaVersion.String())); got != 1 {
		t.Errorf("dropped count after the transport failure = %v, want 1", got)
	}

	var remaining int
	client.ForEachClient(func(p PeerAddress, slot int, c rpc.Client) {
		if p.Equal(peer) {
			remaining++
		}
	})
	if remaining != 0 {
		t.Errorf("client registry still holds %d entries for the dead peer, want 0", remaining)
	}
}

// TestSlotIsolation covers the control-plane/default-plane split: sends on
// different pool slots to the same peer must use distinct connections, so
// evicting one slot's client never affects the other.
func TestSlotIsolation(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	server.RegisterHandler(GetSchemaVersion, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"Version":"v1"}`), nil
	})
	server.RegisterHandler(GossipEcho, func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	})

	client := newTestService(t, "127.0.0.1:0")
	peer := Peer(server.ListenAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, peer, schemaRequest{}); err != nil {
		t.Fatalf("default-slot send: %v", err)
	}
	if err := SendOneway[struct{}](ctx, client, GossipEcho, peer, struct{}{}); err != nil {
		t.Fatalf("control-slot send: %v", err)
	}

	seen := map[int]rpc.Client{}
	client.ForEachClient(func(p PeerAddress, slot int, c rpc.Client) {
		if p.Equal(peer) {
			seen[slot] = c
		}
	})
	if len(seen) != 2 {
		t.Fatalf("expected distinct clients on slots 0 and 1, got %d pooled entries", len(seen))
	}
	if seen[slotDefault] == seen[slotControl] {
		t.Fatal("default-slot and control-slot sends shared the same underlying client")
	}

	client.clients.RemoveSlot(peer, slotDefault)

	if err := SendOneway[struct{}](ctx, client, GossipEcho, peer, struct{}{}); err != nil {
		t.Errorf("control-slot send after evicting the default slot: %v", err)
	}
}

// TestStopDrainsInFlightSends covers Service.Stop waiting for every
// already-admitted send to finish before tearing down the registries,
// rather than severing connections out from under them.
func TestStopDrainsInFlightSends(t *testing.T) {
	const n = 5
	release := make(chan struct{})
	entered := make(chan struct{}, n)

	server := newTestService(t, "127.0.0.1:0")
	server.RegisterHandler(GetSchemaVersion, func(ctx context.Context, payload []byte) ([]byte, error) {
		entered <- struct{}{}
		<-release
		return []byte(`{"Version":"v1"}`), nil
	})

	client := newTestService(t, "127.0.0.1:0")
	peer := Peer(server.ListenAddr())

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := Send[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, peer, schemaRequest{})
			results <- err
		}()
	}

	for i := 0; i < n; i++ {
		<-entered
	}

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight handlers were released")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never returned after releasing the in-flight sends")
	}

	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Errorf("in-flight send %d: %v", i, err)
		}
	}

	_, err := Send[schemaRequest, schemaResponse](context.Background(), client, GetSchemaVersion, peer, schemaRequest{})
	if err != ErrStopped {
		t.Errorf("send after Stop = %v, want ErrStopped", err)
	}
}
