// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command msgnoded runs a standalone messaging node: it listens for peer
// connections, registers the demo verb handlers, publishes itself to
// etcd for discovery, and serves /metrics and an admin JSON-RPC endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luxfi/messaging/admin"
	"github.com/luxfi/messaging/discovery"
	"github.com/luxfi/messaging/messaging"
	"github.com/luxfi/messaging/rpc"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	id := envOr("MSGNODED_ID", "node-1")
	listenAddr := envOr("MSGNODED_LISTEN", "0.0.0.0:7000")
	httpAddr := envOr("MSGNODED_HTTP", ":8080")
	etcdEndpoints := splitCSV(envOr("MSGNODED_ETCD", "http://127.0.0.1:2379"))
	dc := envOr("MSGNODED_DC", "dc1")
	rack := envOr("MSGNODED_RACK", "rack1")

	registry := prometheus.NewRegistry()

	cfg := &messaging.Config{
		ListenAddress: listenAddr,
		Keepalive:     rpc.DefaultKeepalive,
		ListenNow:     false,
	}

	var locality messaging.LocalityOracle
	var membership messaging.MembershipOracle
	var preferredIPLoader messaging.PreferredIPLoader
	var knownHosts []string

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cli, err := discovery.NewClient(etcdEndpoints)
	if err != nil {
		log.Fatal("connect etcd", zap.Error(err))
	}
	defer cli.Close()

	leaseID, deregister, err := discovery.RegisterNode(cli, discovery.NodeInfo{
		ID:         id,
		Addr:       listenAddr,
		Datacenter: dc,
		Rack:       rack,
	}, 10)
	if err != nil {
		log.Fatal("register node", zap.Error(err))
	}
	defer func() {
		deregister()
		cli.Revoke(context.Background(), leaseID)
	}()

	reg, err := discovery.NewRegistry(ctx, cli, log)
	if err != nil {
		log.Fatal("build discovery registry", zap.Error(err))
	}
	locality = discovery.NewLocalityOracle(reg, id)
	membership = discovery.NewMembershipOracle(reg)
	loader := discovery.NewPreferredIPLoader(reg)
	preferredIPLoader = loader
	knownHosts = loader.KnownHosts()

	cfg.Locality = locality
	cfg.Membership = membership

	svc, err := messaging.NewService(cfg, messaging.Peer(listenAddr),
		messaging.WithLogger(log),
		messaging.WithMetricsRegisterer(registry),
		messaging.WithPreferredIPLoader(preferredIPLoader, knownHosts),
	)
	if err != nil {
		log.Fatal("construct service", zap.Error(err))
	}

	registerDemoHandlers(svc, log)

	if err := svc.StartListen(); err != nil {
		log.Fatal("start listen", zap.Error(err))
	}
	log.Info("messaging node listening", zap.String("id", id), zap.String("addr", listenAddr))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/rpc", admin.NewHandler(svc))

	httpSrv := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	svc.Stop()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

