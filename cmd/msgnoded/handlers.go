// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/luxfi/messaging/messaging"
)

// registerDemoHandlers wires the control-plane verbs a bare node needs to
// answer so it is reachable by other msgnoded instances: GOSSIP_ECHO as a
// liveness probe, and GOSSIP_DIGEST_SYN/ACK2/SHUTDOWN stubbed as no-ops
// so a real gossip implementation can be slotted in later without
// changing this binary's wiring.
func registerDemoHandlers(svc *messaging.Service, log *zap.Logger) {
	svc.RegisterHandler(messaging.GossipEcho, func(ctx context.Context, payload []byte) ([]byte, error) {
		src, _ := messaging.SourceFromContext(ctx)
		log.Debug("gossip echo", zap.Stringer("from", src.Addr))
		return nil, nil
	})

	svc.RegisterHandler(messaging.GossipDigestSyn, func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	})

	svc.RegisterHandler(messaging.GossipDigestAck2, func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	})

	svc.RegisterHandler(messaging.GossipShutdown, func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	})
}
