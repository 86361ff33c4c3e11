// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"time"
)

// defaultCallTimeout bounds a Send call that does not specify its own
// deadline and whose ctx carries none either, so a send against a wedged
// peer doesn't hang a caller forever.
const defaultCallTimeout = 2 * time.Minute

// Send issues verb against peer with req and decodes the reply into a
// Resp, the Go analogue of messaging_service::send_message<MsgIn,
// MsgOut...> parameterized by the request/response pair the verb
// carries.
func Send[Req, Resp any](ctx context.Context, s *Service, verb Verb, peer PeerAddress, req Req) (Resp, error) {
	return SendWithTimeout[Req, Resp](ctx, s, verb, peer, defaultCallTimeout, req)
}

// SendWithTimeout is Send bounded by an explicit per-call timeout,
// applied on top of whatever deadline ctx already carries.
func SendWithTimeout[Req, Resp any](ctx context.Context, s *Service, verb Verb, peer PeerAddress, timeout time.Duration, req Req) (Resp, error) {
	var resp Resp
	if err := s.enter(); err != nil {
		return resp, err
	}
	defer s.leave()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slot := poolSlot(verb)
	handle, err := s.clients.Get(ctx, peer, slot)
	if err != nil {
		s.metrics.observeDropped(verb)
		return resp, err
	}
	defer handle.Release()

	done := s.metrics.observeSend(verb)
	defer done()

	err = handle.Client().Call(ctx, verbMethodName(verb), req, &resp)
	if err != nil {
		s.handleSendError(peer, slot, verb, err)
		return resp, err
	}
	return resp, nil
}

// SendOneway issues verb against peer with req without waiting for a
// reply, the Go analogue of send_message with a no_wait_type response —
// used for fire-and-forget verbs like GOSSIP_ECHO.
func SendOneway[Req any](ctx context.Context, s *Service, verb Verb, peer PeerAddress, req Req) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	slot := poolSlot(verb)
	handle, err := s.clients.Get(ctx, peer, slot)
	if err != nil {
		s.metrics.observeDropped(verb)
		return err
	}
	defer handle.Release()

	done := s.metrics.observeSend(verb)
	defer done()

	if err := handle.Client().Notify(ctx, verbMethodName(verb), req); err != nil {
		s.handleSendError(peer, slot, verb, err)
		return err
	}
	return nil
}

// handleSendError reacts to a failed call: every failure counts as a
// dropped message for the verb; a transport-level error additionally
// means the connection is permanently broken, so it's evicted from the
// pool (future sends dial a fresh one).
func (s *Service) handleSendError(peer PeerAddress, slot int, verb Verb, err error) {
	s.metrics.observeDropped(verb)
	if isTransportError(err) {
		s.clients.RemoveError(peer, slot, err)
	}
}
