// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc provides protocol-agnostic RPC abstractions for the Lux ecosystem.
//
// # Transport Selection
//
// ZAP is the default transport, optimized for high-frequency trading and VM communication.
// Use build tags to enable alternative transports:
//
//	go build              # ZAP only (default, fastest)
//	go build -tags grpc   # Enable gRPC transport
//
// JSON-RPC is not a Dial/Listen transport; it is available only as the
// HTTP client SendJSONRequest.
//
// # Usage
//
// Client usage:
//
//	client, err := rpc.Dial(ctx, "localhost:9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Structured call (auto JSON encoding)
//	var result MyResponse
//	err = client.Call(ctx, "Service.Method", &MyRequest{...}, &result)
//
//	// Raw call (zero-copy, for HFT)
//	resp, err := client.CallRaw(ctx, "trade", orderBytes)
//
// Server usage:
//
//	server, err := rpc.Listen(":9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Register raw handler for low-latency
//	server.RegisterRaw("trade", func(ctx context.Context, payload []byte) ([]byte, error) {
//	    // Process order with zero-copy
//	    return processOrder(payload)
//	})
//
//	server.Serve(ctx)
//
// # Performance
//
// BenchmarkZAPRoundTrip in zap_test.go measures a 1KB CallRaw echo over a
// loopback TCP connection:
//
//	go test -bench ZAPRoundTrip ./rpc
//
// # Architecture
//
// The package separates concerns:
//
//   - client.go: Protocol-agnostic Client and Server interfaces
//   - codec.go: Codec interface for message encoding
//   - transport.go: Transport registry for build-tag extensibility
//   - dial.go: Dial and Listen factory functions
//   - zap.go: ZAP transport implementation (default)
//   - dial_grpc.go: gRPC transport (requires -tags grpc)
//
// Application code should only depend on the Client/Server interfaces,
// making transport selection a deployment decision rather than a code change.
package rpc
