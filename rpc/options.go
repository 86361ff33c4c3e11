// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"net/http"
	"net/url"
)

// Option configures a single JSON-RPC-over-HTTP request made with
// SendJSONRequest.
type Option func(*requestOptions)

type requestOptions struct {
	headers     http.Header
	queryParams url.Values
}

// NewOptions collapses a slice of Option into a requestOptions, the way
// client_options structs are built throughout this package.
func NewOptions(opts []Option) *requestOptions {
	o := &requestOptions{
		headers:     make(http.Header),
		queryParams: make(url.Values),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHeader sets a request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) { o.headers.Set(key, value) }
}

// WithQueryParam sets a URL query parameter.
func WithQueryParam(key, value string) Option {
	return func(o *requestOptions) { o.queryParams.Set(key, value) }
}
