// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "testing"

type fakeLocality struct {
	sameDC, sameRack map[string]bool
}

func (f *fakeLocality) SameDC(ip string) bool   { return f.sameDC[ip] }
func (f *fakeLocality) SameRack(ip string) bool { return f.sameRack[ip] }

func TestMustEncryptNone(t *testing.T) {
	cfg := &Config{EncryptWhat: EncryptNone}
	if cfg.mustEncrypt("10.0.0.1") {
		t.Error("EncryptNone must never require TLS")
	}
}

func TestMustEncryptAll(t *testing.T) {
	cfg := &Config{EncryptWhat: EncryptAll}
	if !cfg.mustEncrypt("10.0.0.1") {
		t.Error("EncryptAll must always require TLS")
	}
}

func TestMustEncryptDCWithoutOracleBehavesAsNone(t *testing.T) {
	cfg := &Config{EncryptWhat: EncryptDC}
	if cfg.mustEncrypt("10.0.0.1") {
		t.Error("EncryptDC with no locality oracle should behave as EncryptNone")
	}
}

func TestMustEncryptDCWithOracle(t *testing.T) {
	loc := &fakeLocality{sameDC: map[string]bool{"10.0.0.1": true}}
	cfg := &Config{EncryptWhat: EncryptDC, Locality: loc}

	if cfg.mustEncrypt("10.0.0.1") {
		t.Error("same-DC peer should not require TLS under EncryptDC")
	}
	if !cfg.mustEncrypt("10.0.0.2") {
		t.Error("cross-DC peer should require TLS under EncryptDC")
	}
}

func TestMustCompressAllVsNone(t *testing.T) {
	all := &Config{CompressWhat: CompressAll}
	none := &Config{CompressWhat: CompressNone}

	if !all.mustCompress("10.0.0.1") {
		t.Error("CompressAll must always compress")
	}
	if none.mustCompress("10.0.0.1") {
		t.Error("CompressNone must never compress")
	}
}
