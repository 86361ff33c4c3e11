// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package discovery implements the etcd-backed oracles a messaging
// service consults to resolve cluster topology: which peers are still
// members, which datacenter/rack they belong to, and which address to
// prefer when dialing them.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// NodeInfo is what each cluster member publishes about itself under its
// registry key.
type NodeInfo struct {
	ID            string  `json:"id"`
	Addr          string  `json:"addr"`
	PreferredAddr string  `json:"preferred_addr,omitempty"`
	Datacenter    string  `json:"dc"`
	Rack          string  `json:"rack"`
	Longitude     float64 `json:"lng,omitempty"`
	Latitude      float64 `json:"lat,omitempty"`
}

const nodePrefix = "/messaging/nodes/"

// NewClient dials etcd at the given endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterNode publishes info under a lease with the given TTL (seconds)
// and starts a background keepalive so the registration survives as long
// as this process does. The returned cancel func stops the keepalive and
// lets the lease expire, deregistering the node.
func RegisterNode(cli *clientv3.Client, info NodeInfo, ttlSeconds int64) (clientv3.LeaseID, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())

	lease, err := cli.Grant(ctx, ttlSeconds)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}

	value, err := encodeNodeInfo(info)
	if err != nil {
		cancel()
		return 0, nil, err
	}

	key := nodePrefix + info.ID
	if _, err := cli.Put(ctx, key, value, clientv3.WithLease(lease.ID)); err != nil {
		cancel()
		return 0, nil, fmt.Errorf("put %s: %w", key, err)
	}

	keepAliveCh, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive %s: %w", key, err)
	}
	go func() {
		for range keepAliveCh {
			// drain; etcd client handles the actual renewal cadence
		}
	}()

	return lease.ID, cancel, nil
}

// GetPeers lists every currently registered node.
func GetPeers(ctx context.Context, cli *clientv3.Client) ([]NodeInfo, error) {
	resp, err := cli.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get %s*: %w", nodePrefix, err)
	}
	peers := make([]NodeInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		info, err := decodeNodeInfo(kv.Value)
		if err != nil {
			continue
		}
		peers = append(peers, info)
	}
	return peers, nil
}

// WatchPeers streams add/update/remove events for the node registry onto
// a channel of NodeEvent, closing it when ctx is cancelled.
func WatchPeers(ctx context.Context, cli *clientv3.Client) <-chan NodeEvent {
	out := make(chan NodeEvent, 16)
	watchCh := cli.Watch(ctx, nodePrefix, clientv3.WithPrefix())
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watchCh:
				if !ok {
					return
				}
				for _, ev := range resp.Events {
					id := strings.TrimPrefix(string(ev.Kv.Key), nodePrefix)
					switch ev.Type {
					case clientv3.EventTypeDelete:
						out <- NodeEvent{ID: id, Removed: true}
					default:
						info, err := decodeNodeInfo(ev.Kv.Value)
						if err != nil {
							continue
						}
						out <- NodeEvent{ID: id, Node: info}
					}
				}
			}
		}
	}()
	return out
}

// NodeEvent describes one change observed on the node registry.
type NodeEvent struct {
	ID      string
	Node    NodeInfo
	Removed bool
}

// Registry keeps an in-memory mirror of the etcd node registry, refreshed
// by an initial GetPeers plus a live WatchPeers subscription. Locality,
// Membership and PreferredIP oracles are thin views over this shared
// cache rather than each issuing their own etcd calls.
type Registry struct {
	cli *clientv3.Client
	log *zap.Logger

	mu    sync.RWMutex
	byID  map[string]NodeInfo
	byIP  map[string]NodeInfo
}

// NewRegistry builds a Registry, loads the current peer set, and starts
// its background watch loop. The initial load completes before it
// returns; later changes arrive through the watch.
func NewRegistry(ctx context.Context, cli *clientv3.Client, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		cli:  cli,
		log:  log,
		byID: make(map[string]NodeInfo),
		byIP: make(map[string]NodeInfo),
	}

	peers, err := GetPeers(ctx, cli)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	for _, p := range peers {
		r.byID[p.ID] = p
		r.byIP[hostOf(p.Addr)] = p
	}
	r.mu.Unlock()

	go r.watchLoop(ctx)
	return r, nil
}

func (r *Registry) watchLoop(ctx context.Context) {
	for ev := range WatchPeers(ctx, r.cli) {
		r.mu.Lock()
		if ev.Removed {
			if old, ok := r.byID[ev.ID]; ok {
				delete(r.byIP, hostOf(old.Addr))
			}
			delete(r.byID, ev.ID)
		} else {
			r.byID[ev.ID] = ev.Node
			r.byIP[hostOf(ev.Node.Addr)] = ev.Node
		}
		r.mu.Unlock()
	}
}

func (r *Registry) lookup(ip string) (NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byIP[ip]
	return info, ok
}

func (r *Registry) self(id string) (NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byID[id]
	return info, ok
}

func hostOf(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}
