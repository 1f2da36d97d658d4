// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tlsutil

import (
	"crypto/tls"
	"strings"
	"testing"

	"github.com/thiratt/nekoshare/lib/keys"
)

func TestNewFingerprintVerifierRejectsBadLength(t *testing.T) {
	if _, err := NewFingerprintVerifier("abc"); err == nil {
		t.Fatal("expected error for short fingerprint")
	}
}

func TestNewFingerprintVerifierRejectsNonHex(t *testing.T) {
	bad := strings.Repeat("z", 64)
	if _, err := NewFingerprintVerifier(bad); err == nil {
		t.Fatal("expected error for non-hex fingerprint")
	}
}

func TestNewFingerprintVerifierLowerCases(t *testing.T) {
	upper := strings.ToUpper(strings.Repeat("ab", 32))
	v, err := NewFingerprintVerifier(upper)
	if err != nil {
		t.Fatalf("NewFingerprintVerifier: %v", err)
	}
	if v.Fingerprint() != strings.ToLower(upper) {
		t.Fatalf("expected lower-cased fingerprint, got %q", v.Fingerprint())
	}
}

// TestVerifyAcceptsMatchingFingerprint and TestVerifyRejectsMismatch cover
// P8: fingerprint verification accepts iff hex(SHA-256(cert_der)) == stored
// (case-insensitive); otherwise rejects.
func TestVerifyAcceptsMatchingFingerprint(t *testing.T) {
	dir := t.TempDir()
	k, err := keys.GetOrCreate(dir, "localhost")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	v, err := NewFingerprintVerifier(k.Fingerprint)
	if err != nil {
		t.Fatalf("NewFingerprintVerifier: %v", err)
	}
	if err := v.Verify([][]byte{k.CertDER}, nil); err != nil {
		t.Fatalf("expected matching fingerprint to verify, got %v", err)
	}
}

// TestVerifyRejectsMismatch covers scenario 4: a fingerprint that differs
// by one hex character must be rejected.
func TestVerifyRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	k, err := keys.GetOrCreate(dir, "localhost")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	tampered := []rune(k.Fingerprint)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	v, err := NewFingerprintVerifier(string(tampered))
	if err != nil {
		t.Fatalf("NewFingerprintVerifier: %v", err)
	}
	if err := v.Verify([][]byte{k.CertDER}, nil); err != ErrFingerprintMismatch {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
}

func TestVerifyRejectsEmptyCertList(t *testing.T) {
	v, _ := NewFingerprintVerifier(strings.Repeat("a", 64))
	if err := v.Verify(nil, nil); err == nil {
		t.Fatal("expected error for empty cert list")
	}
}

func TestClientServerConfigsAreTLS13Only(t *testing.T) {
	dir := t.TempDir()
	k, err := keys.GetOrCreate(dir, "localhost")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	cert, err := k.Certificate()
	if err != nil {
		t.Fatalf("Certificate: %v", err)
	}
	v, err := NewFingerprintVerifier(k.Fingerprint)
	if err != nil {
		t.Fatalf("NewFingerprintVerifier: %v", err)
	}

	cc := ClientConfig(cert, v)
	if cc.MinVersion != tls.VersionTLS13 || cc.MaxVersion != tls.VersionTLS13 {
		t.Fatal("expected client config pinned to TLS 1.3")
	}

	sc := ServerConfig(cert, v)
	if sc.ClientAuth != tls.RequireAnyClientCert {
		t.Fatal("expected server config to require a client certificate")
	}
}
