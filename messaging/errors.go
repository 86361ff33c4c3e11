// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/messaging/rpc"
)

var (
	// ErrStopped is returned by Send* once Service.Stop has been called, or
	// concurrently with Stop racing a send. Nothing queued after Stop is
	// honored; callers must not retry on this error.
	ErrStopped = errors.New("messaging: service is stopped")

	// ErrUnknownEndpoint is returned when send_with_retry gives up because
	// the membership oracle no longer considers the peer part of the
	// cluster, the same terminal condition the source calls "unknown
	// endpoint" in its retry loop.
	ErrUnknownEndpoint = errors.New("messaging: peer is not a known cluster member")

	// ErrRetriesExhausted is returned by SendWithRetry once max_retries is
	// reached without a successful reply.
	ErrRetriesExhausted = errors.New("messaging: exhausted retries sending to peer")
)

// ErrNoHandler is returned by dispatch when a verb has no registered
// handler. A caller on another node sees it only as the remote error
// text, not as this type.
type ErrNoHandler struct {
	Verb Verb
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("messaging: no handler registered for %s", e.Verb)
}

// isTransportError reports whether err indicates the connection itself is
// unusable, rather than an application-level failure, matching the
// source's handling of rpc::closed_error as the trigger for client
// eviction rather than simple propagation to the caller.
func isTransportError(err error) bool {
	return errors.Is(err, rpc.ErrClosed)
}

// isTimeoutError reports whether err is a per-call deadline expiry, which
// the retry loop treats as terminal rather than retryable — the source's
// comment is explicit that a timed-out verb must not be resent blindly,
// since the original attempt may still be executing on the peer.
func isTimeoutError(err error) bool {
	return errors.Is(err, rpc.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
