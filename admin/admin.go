// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admin exposes a messaging.Service's runtime state over
// JSON-RPC-over-HTTP, the operator-facing counterpart to the node's
// peer-to-peer ZAP endpoints. msgctl talks to it with
// rpc.SendJSONRequest; a human can reach the same methods with any
// JSON-RPC 2.0 client.
package admin

import (
	"net/http"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/messaging/messaging"
	"github.com/luxfi/messaging/rpc"
)

// Service implements the JSON-RPC methods gorilla/rpc dispatches to.
// Every method follows the package's required (http.Request, *Args,
// *Reply) error signature.
type Service struct {
	svc *messaging.Service
}

// PingArgs names the peer to probe.
type PingArgs struct {
	Addr string `json:"addr"`
}

// PingReply reports whether the probe succeeded.
type PingReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Ping sends GOSSIP_ECHO to args.Addr and reports the result, the
// operator-facing equivalent of a reachability check.
func (s *Service) Ping(r *http.Request, args *PingArgs, reply *PingReply) error {
	peer := messaging.Peer(args.Addr)
	_, err := messaging.Send[struct{}, messaging.NoReply](r.Context(), s.svc, messaging.GossipEcho, peer, struct{}{})
	if err != nil {
		reply.Error = err.Error()
		return nil
	}
	reply.OK = true
	return nil
}

// ClientStatsReply lists every pooled outbound connection, giving only its
// peer and pool slot.
type ClientStatsReply struct {
	Clients []ClientStat `json:"clients"`
}

// ClientStat is one row of ClientStatsReply.
type ClientStat struct {
	Peer string `json:"peer"`
	Slot int    `json:"slot"`
}

// ClientStats lists every pooled outbound connection, the JSON-RPC
// counterpart of messaging.Service.ForEachClient.
func (s *Service) ClientStats(r *http.Request, _ *struct{}, reply *ClientStatsReply) error {
	s.svc.ForEachClient(func(peer messaging.PeerAddress, slot int, _ rpc.Client) {
		reply.Clients = append(reply.Clients, ClientStat{Peer: peer.String(), Slot: slot})
	})
	return nil
}

// NewHandler builds the http.Handler msgnoded mounts to serve the admin
// API, registering json2 as the (and only) codec.
func NewHandler(svc *messaging.Service) http.Handler {
	server := gorillarpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterService(&Service{svc: svc}, "admin")
	return server
}
