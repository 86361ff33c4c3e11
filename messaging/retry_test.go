// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMembership struct {
	known map[string]bool
}

func (f *fakeMembership) IsKnownEndpoint(ip string) bool { return f.known[ip] }

func TestSendWithRetrySucceedsWithoutRetrying(t *testing.T) {
	server := newTestService(t, "127.0.0.1:0")
	server.RegisterHandler(GossipDigestSyn, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})

	cfg := &Config{ListenAddress: "127.0.0.1:0", ListenNow: true, RetryWait: time.Millisecond}
	client, err := NewService(cfg, Peer("127.0.0.1:0"), WithLogger(zap.NewNop()), WithMetricsRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(client.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = SendWithRetry[struct{}, struct{}](ctx, client, GossipDigestSyn, Peer(server.ListenAddr()), struct{}{})
	if err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
}

func TestSendWithRetryAbandonsOnUnknownEndpoint(t *testing.T) {
	cfg := &Config{
		ListenAddress: "127.0.0.1:0",
		ListenNow:     true,
		RetryWait:     time.Millisecond,
		MaxRetries:    5,
		Membership:    &fakeMembership{known: map[string]bool{}},
	}
	client, err := NewService(cfg, Peer("127.0.0.1:0"), WithLogger(zap.NewNop()), WithMetricsRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(client.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Nothing is listening on this address, so every attempt fails to
	// dial, and the membership oracle reports the peer unknown
	// immediately.
	_, err = SendWithRetry[struct{}, struct{}](ctx, client, GossipDigestSyn, Peer("127.0.0.1:1"), struct{}{})
	if err != ErrUnknownEndpoint {
		t.Errorf("SendWithRetry = %v, want ErrUnknownEndpoint", err)
	}
}

// TestSendWithRetryRecoversAndLogsOnce covers the success-after-retry path:
// a send that fails its first attempt against a peer that isn't listening
// yet, then succeeds once the peer comes up, must return the reply and log
// exactly one recovery line.
func TestSendWithRetryRecoversAndLogsOnce(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving a port: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	core, logs := observer.New(zap.InfoLevel)
	cfg := &Config{ListenAddress: "127.0.0.1:0", ListenNow: true, RetryWait: 100 * time.Millisecond, MaxRetries: 5}
	client, err := NewService(cfg, Peer("127.0.0.1:0"), WithLogger(zap.New(core)), WithMetricsRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(client.Stop)

	type result struct {
		resp schemaResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := SendWithRetry[schemaRequest, schemaResponse](ctx, client, GetSchemaVersion, Peer(addr), schemaRequest{})
		done <- result{resp, err}
	}()

	// Give the first attempt time to fail against the still-unbound
	// address before bringing the server up, so this actually exercises
	// a retry rather than succeeding on the first attempt.
	time.Sleep(20 * time.Millisecond)

	server, err := NewService(&Config{ListenAddress: addr, ListenNow: true}, Peer(addr),
		WithLogger(zap.NewNop()), WithMetricsRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService server: %v", err)
	}
	t.Cleanup(server.Stop)
	server.RegisterHandler(GetSchemaVersion, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`{"Version":"v1"}`), nil
	})

	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SendWithRetry never returned")
	}
	if r.err != nil {
		t.Fatalf("SendWithRetry: %v", r.err)
	}
	if r.resp.Version != "v1" {
		t.Errorf("Version = %q, want v1", r.resp.Version)
	}

	recovered := logs.FilterMessage("send recovered after retry").All()
	if len(recovered) != 1 {
		t.Fatalf("recovery log entries = %d, want 1", len(recovered))
	}
}

// TestSendWithRetryStopUnblocksSleepingRetryPromptly covers Stop cancelling
// a retry loop parked in abortableSleep: without that wiring this would
// block for the full RetryWait before noticing the service stopped.
func TestSendWithRetryStopUnblocksSleepingRetryPromptly(t *testing.T) {
	cfg := &Config{ListenAddress: "127.0.0.1:0", ListenNow: true, RetryWait: 5 * time.Second, MaxRetries: 5}
	client, err := NewService(cfg, Peer("127.0.0.1:0"), WithLogger(zap.NewNop()), WithMetricsRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := SendWithRetry[struct{}, struct{}](ctx, client, GossipDigestSyn, Peer("127.0.0.1:1"), struct{}{})
		done <- err
	}()

	// Let the first attempt fail and the loop settle into abortableSleep
	// before calling Stop.
	time.Sleep(50 * time.Millisecond)

	client.Stop()

	select {
	case err := <-done:
		if err != ErrStopped {
			t.Errorf("SendWithRetry after Stop = %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendWithRetry did not return promptly after Stop; it rode out the retry wait")
	}
}
