// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc provides protocol-agnostic RPC client/server abstractions.
// Applications use these interfaces without caring about the underlying
// transport (ZAP, gRPC, JSON-RPC, etc.).
//
// ZAP is the default transport. Use build tags to enable alternatives:
//
//	go build -tags grpc  # Enable gRPC transport
//
// JSON-RPC is not a Dial/Listen transport; see SendJSONRequest.
package rpc

import (
	"context"
	"io"
)

// Client is the protocol-agnostic RPC client interface.
// All application code should use this interface.
type Client interface {
	// Call makes a synchronous RPC call
	Call(ctx context.Context, method string, args, reply interface{}) error

	// CallRaw makes a call with raw bytes (for zero-copy scenarios)
	CallRaw(ctx context.Context, method string, payload []byte) ([]byte, error)

	// Notify sends a one-way message (no response expected)
	Notify(ctx context.Context, method string, args interface{}) error

	// Closed reports whether the connection has entered a permanent error
	// state (the read loop died, the peer reset the connection, ...). A
	// client in this state will never recover; callers should discard it
	// and dial a fresh one.
	Closed() bool

	// Stats returns a snapshot of this connection's counters.
	Stats() Stats

	// Close closes the connection
	Close() error
}

// Stats is a snapshot of per-connection RPC counters.
type Stats struct {
	Sent          uint64
	Received      uint64
	Pending       int
	FailedPings   int
}

// Server is the protocol-agnostic RPC server interface.
type Server interface {
	// Register registers a service handler
	Register(name string, handler interface{}) error

	// RegisterRaw registers a raw byte handler
	RegisterRaw(method string, handler RawHandler) error

	// Serve starts serving requests (blocks until context cancelled)
	Serve(ctx context.Context) error

	// Close stops the server
	Close() error

	// Addr returns the server's listen address
	Addr() string

	// ForEachConnection enumerates the server's live connections and their
	// stats. Used by callers that need per-connection visibility (e.g. a
	// server-side connection registry) rather than aggregate server stats.
	ForEachConnection(f func(*ClientInfo, Stats))
}

// RawHandler handles raw byte RPC calls (for zero-copy)
type RawHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Codec encodes/decodes RPC messages
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Transport represents the underlying transport mechanism
type Transport interface {
	io.Closer
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	codec      Codec
	transport  string // "zap", "grpc", "json"
	tlsConfig  interface{} // *tls.Config, kept as interface{} to avoid importing crypto/tls in non-TLS builds
	compressor CompressorFactory
	keepalive  *KeepaliveParams
	localAddr  string
	noDelay    *bool
}

// WithClientNoDelay explicitly sets TCP_NODELAY on this connection,
// overriding the platform default. Used by callers that resolve Nagle
// behavior from a locality policy rather than wanting it always on.
func WithClientNoDelay(enabled bool) DialOption {
	return func(o *dialOptions) { o.noDelay = &enabled }
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithClientTLS dials over TLS using the given *tls.Config.
func WithClientTLS(cfg interface{}) DialOption {
	return func(o *dialOptions) { o.tlsConfig = cfg }
}

// WithClientCompressor negotiates the given compressor for this connection.
func WithClientCompressor(f CompressorFactory) DialOption {
	return func(o *dialOptions) { o.compressor = f }
}

// WithClientKeepalive enables idle keepalive probing on this connection.
func WithClientKeepalive(p KeepaliveParams) DialOption {
	return func(o *dialOptions) { o.keepalive = &p }
}

// WithLocalAddr binds the dialer to a specific local address before connecting.
func WithLocalAddr(addr string) DialOption {
	return func(o *dialOptions) { o.localAddr = addr }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	codec      Codec
	transport  string
	tlsConfig  interface{} // *tls.Config
	compressor CompressorFactory
}

// WithServerCodec sets a custom codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithServerTLS serves over TLS using the given *tls.Config.
func WithServerTLS(cfg interface{}) ServerOption {
	return func(o *serverOptions) { o.tlsConfig = cfg }
}

// WithServerCompressor advertises the given compressor to connecting clients.
func WithServerCompressor(f CompressorFactory) ServerOption {
	return func(o *serverOptions) { o.compressor = f }
}
