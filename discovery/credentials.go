// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// FileCredentialsBuilder loads a server certificate/key and a CA bundle
// from disk, satisfying messaging.CredentialsBuilder. Both the client and
// server TLS configs it builds require and verify the peer's certificate
// against the same CA, matching a mutual-TLS cluster deployment.
type FileCredentialsBuilder struct {
	CAPath   string
	CertPath string
	KeyPath  string
	// ServerName overrides the name the client verifies the server
	// certificate against; empty uses the dialed address's host.
	ServerName string
}

// ClientTLSConfig builds the *tls.Config used when dialing a peer.
func (b *FileCredentialsBuilder) ClientTLSConfig() (*tls.Config, error) {
	cert, caPool, err := b.loadCertAndCA()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   b.ServerName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ServerTLSConfig builds the *tls.Config used by a listening socket,
// requiring and verifying client certificates against the same CA.
func (b *FileCredentialsBuilder) ServerTLSConfig() (*tls.Config, error) {
	cert, caPool, err := b.loadCertAndCA()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (b *FileCredentialsBuilder) loadCertAndCA() (tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(b.CertPath, b.KeyPath)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("load keypair %s/%s: %w", b.CertPath, b.KeyPath, err)
	}

	caBytes, err := os.ReadFile(b.CAPath)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("read ca %s: %w", b.CAPath, err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caBytes) {
		return tls.Certificate{}, nil, fmt.Errorf("parse ca %s: no certificates found", b.CAPath)
	}

	return cert, caPool, nil
}
