// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"sync"
)

// ClientInfo describes the peer on the other end of a server-side
// connection. Handlers retrieve it from the context to learn who called
// them, the same way the source's rpc::client_info carries a connection's
// auxiliary map.
type ClientInfo struct {
	RemoteAddr string

	mu  sync.RWMutex
	aux map[string]interface{}
}

func newClientInfo(remoteAddr string) *ClientInfo {
	return &ClientInfo{RemoteAddr: remoteAddr, aux: make(map[string]interface{})}
}

// NewClientInfo builds a ClientInfo for remoteAddr. Exposed for transports
// and tests that need to construct one outside of a live accept loop.
func NewClientInfo(remoteAddr string) *ClientInfo {
	return newClientInfo(remoteAddr)
}

// Attach stores a value under key, overwriting any previous value. Used by
// the handshake handler to record the caller's self-reported address on
// first contact.
func (ci *ClientInfo) Attach(key string, v interface{}) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.aux[key] = v
}

// Auxiliary retrieves a value previously stored with Attach.
func (ci *ClientInfo) Auxiliary(key string) (interface{}, bool) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	v, ok := ci.aux[key]
	return v, ok
}

type clientInfoKey struct{}

// ContextWithClientInfo returns a context carrying ci, so that handlers can
// retrieve it with ClientInfoFromContext.
func ContextWithClientInfo(ctx context.Context, ci *ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, ci)
}

// ClientInfoFromContext retrieves the ClientInfo attached by the server for
// the connection a handler is currently being invoked on. ok is false for
// client-side contexts or handlers invoked outside of a server dispatch.
func ClientInfoFromContext(ctx context.Context) (*ClientInfo, bool) {
	ci, ok := ctx.Value(clientInfoKey{}).(*ClientInfo)
	return ci, ok
}
