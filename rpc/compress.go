// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Compressor compresses and decompresses frame payloads for one connection.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressorFactory produces a Compressor. Kept distinct from Compressor
// itself because some algorithms need per-connection state (dictionaries,
// streaming windows); LZ4 doesn't, but the interface leaves room for one
// that does.
type CompressorFactory interface {
	Name() string
	New() Compressor
}

// lz4Compressor implements Compressor using the LZ4 frame format
// (lz4.NewWriter/lz4.NewReader).
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

// lz4Factory is the singleton LZ4 compressor factory, analogous to the
// source's static rpc::lz4_compressor::factory.
type lz4Factory struct{}

func (lz4Factory) Name() string     { return "lz4" }
func (lz4Factory) New() Compressor { return lz4Compressor{} }

// LZ4CompressorFactory is the default LZ4 factory.
var LZ4CompressorFactory CompressorFactory = lz4Factory{}

// MultiAlgoCompressorFactory picks a compressor by name out of a set of
// registered factories, mirroring the source's
// rpc::multi_algo_compressor_factory (constructed there from a single LZ4
// backing factory, but able to hold more than one).
type MultiAlgoCompressorFactory struct {
	factories map[string]CompressorFactory
	preferred string
}

// NewMultiAlgoCompressorFactory builds a factory preferring the first
// argument; additional factories are available by name for negotiation but
// New() always returns the preferred one, matching the source's use of a
// single active algorithm per deployment.
func NewMultiAlgoCompressorFactory(preferred CompressorFactory, alternates ...CompressorFactory) *MultiAlgoCompressorFactory {
	m := &MultiAlgoCompressorFactory{
		factories: make(map[string]CompressorFactory, 1+len(alternates)),
		preferred: preferred.Name(),
	}
	m.factories[preferred.Name()] = preferred
	for _, a := range alternates {
		m.factories[a.Name()] = a
	}
	return m
}

func (m *MultiAlgoCompressorFactory) Name() string { return m.preferred }

func (m *MultiAlgoCompressorFactory) New() Compressor {
	return m.factories[m.preferred].New()
}

// ByName returns the named algorithm's compressor, if registered.
func (m *MultiAlgoCompressorFactory) ByName(name string) (Compressor, bool) {
	f, ok := m.factories[name]
	if !ok {
		return nil, false
	}
	return f.New(), true
}

// DefaultCompressorFactory is the multi-algorithm factory backed by LZ4,
// matching the source's global compressor_factory instance.
var DefaultCompressorFactory = NewMultiAlgoCompressorFactory(LZ4CompressorFactory)
