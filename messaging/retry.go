// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SendWithRetry issues verb against peer with req, resending on a
// transport-closed error until MaxRetries is exhausted, the peer is no
// longer a known cluster member, ctx is cancelled, or a reply arrives —
// the Go analogue of messaging_service::send_message_timeout_and_retry.
//
// A per-call timeout error is never retried: the original attempt may
// still be executing on the peer, and resending it blindly risks
// duplicate side effects. Only a closed/refused connection is treated as
// safe to retry, since the remote side never received that attempt.
func SendWithRetry[Req, Resp any](ctx context.Context, s *Service, verb Verb, peer PeerAddress, req Req) (Resp, error) {
	var resp Resp
	var lastErr error

	maxRetries := s.cfg.maxRetries()
	perTry := s.cfg.perTryTimeout()
	wait := s.cfg.retryWait()

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := s.checkNotStopped(); err != nil {
			return resp, err
		}
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}

		resp, lastErr = SendWithTimeout[Req, Resp](ctx, s, verb, peer, perTry, req)
		if lastErr == nil {
			if attempt > 0 {
				s.log.Info("send recovered after retry",
					zap.Stringer("peer", peer), zap.String("verb", verb.String()), zap.Int("attempt", attempt))
			}
			return resp, nil
		}

		if isTimeoutError(lastErr) {
			return resp, lastErr
		}
		if !isTransportError(lastErr) {
			return resp, lastErr
		}

		if attempt == maxRetries-1 {
			break
		}

		s.metrics.observeRetry(verb)

		if s.cfg.Membership != nil && !s.cfg.Membership.IsKnownEndpoint(peer.host()) {
			s.log.Info("abandoning retry, peer left the cluster",
				zap.Stringer("peer", peer), zap.String("verb", verb.String()))
			return resp, ErrUnknownEndpoint
		}

		if err := abortableSleep(ctx, s.stopCh, wait); err != nil {
			return resp, err
		}
	}

	return resp, errors.Join(ErrRetriesExhausted, lastErr)
}

// abortableSleep blocks for d, until ctx is cancelled, or until stop is
// closed, whichever comes first, the Go analogue of the source's
// sleep_abortable built on a seastar::abort_source — stop is that
// abort_source's Go shape, closed once by Service.Stop so a retry loop
// sleeping between attempts never rides out the full wait after the
// service has been told to shut down.
func abortableSleep(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	}
}
