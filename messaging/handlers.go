// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/messaging/rpc"
)

// Handler processes one decoded request for a verb and returns the
// encoded reply payload, or an error. The caller's identity (remote
// address, and whatever the CLIENT_ID handshake attached) is available
// from ctx via SourceFromContext.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// HandlerRegistry maps verbs to their registered handler, the Go analogue
// of messaging_service::_rpc plus its per-verb register_handler calls.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[Verb]Handler
}

func newHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[Verb]Handler)}
}

// Register installs handler for verb, replacing any previous registration
// for the same verb — register_handler in the source has the same
// overwrite semantics, used by tests that swap a verb's implementation.
func (r *HandlerRegistry) Register(verb Verb, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[verb] = handler
}

// Unregister removes verb's handler, if any.
func (r *HandlerRegistry) Unregister(verb Verb) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, verb)
}

// lookup returns verb's handler, if registered.
func (r *HandlerRegistry) lookup(verb Verb) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[verb]
	return h, ok
}

// dispatch runs verb's handler against payload, returning ErrNoHandler if
// none is registered.
func (r *HandlerRegistry) dispatch(ctx context.Context, verb Verb, payload []byte) ([]byte, error) {
	h, ok := r.lookup(verb)
	if !ok {
		return nil, &ErrNoHandler{Verb: verb}
	}
	return h(ctx, payload)
}

// sourceKey is the context key the CLIENT_ID handshake and handler
// dispatch use to carry the caller's identity.
type sourceKey struct{}

// Source identifies who sent the request a handler is currently
// processing: the address rpc saw the connection arrive on, plus
// whatever CLIENT_ID carried.
type Source struct {
	Addr PeerAddress
}

// ContextWithSource attaches src to ctx, the way a handler invocation's
// context is built before calling into user code.
func ContextWithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

// SourceFromContext retrieves the caller identity a handler was invoked
// with, the Go analogue of messaging_service::get_source.
func SourceFromContext(ctx context.Context) (Source, bool) {
	src, ok := ctx.Value(sourceKey{}).(Source)
	return src, ok
}

// sourceFromClientInfo derives a Source from the rpc package's
// per-connection ClientInfo, consulting the CLIENT_ID auxiliary value if
// the handshake has run, and falling back to the raw socket address
// otherwise.
func sourceFromClientInfo(ci *rpc.ClientInfo) Source {
	if ci == nil {
		return Source{}
	}
	if v, ok := ci.Auxiliary(clientIDAuxKey); ok {
		if addr, ok := v.(PeerAddress); ok {
			return Source{Addr: addr}
		}
	}
	return Source{Addr: Peer(ci.RemoteAddr)}
}

const clientIDAuxKey = "messaging.client_id"

// verbMethodName renders the wire method name used for a verb's request,
// matching Verb.String() so logs and RPC traces agree.
func verbMethodName(v Verb) string {
	return v.String()
}

// parseVerbMethodName is the inverse of verbMethodName, used by the
// server dispatch loop to map an incoming wire method back to a Verb.
func parseVerbMethodName(name string) (Verb, error) {
	for v, n := range verbNames {
		if n == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("messaging: unknown verb %q", name)
}
