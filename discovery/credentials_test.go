// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import "testing"

func TestFileCredentialsBuilderMissingFiles(t *testing.T) {
	b := &FileCredentialsBuilder{
		CertPath: "/nonexistent/cert.pem",
		KeyPath:  "/nonexistent/key.pem",
		CAPath:   "/nonexistent/ca.pem",
	}

	if _, err := b.ClientTLSConfig(); err == nil {
		t.Error("ClientTLSConfig with missing files should fail")
	}
	if _, err := b.ServerTLSConfig(); err == nil {
		t.Error("ServerTLSConfig with missing files should fail")
	}
}
