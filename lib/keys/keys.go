// Copyright (C) 2024 The Nekoshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package keys generates and persists the self-signed Ed25519 identity
// certificate each device uses to authenticate itself over TLS.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const commonName = "Nekoshare"

// KeyDer holds a device's identity material: the DER-encoded self-signed
// certificate, its DER-encoded Ed25519 private key, and the certificate's
// SHA-256 fingerprint as lower-case hex.
type KeyDer struct {
	CertDER     []byte
	KeyDER      []byte
	Fingerprint string
}

// Certificate adapts the stored DER material into a tls.Certificate usable
// directly by a tls.Config.
func (k KeyDer) Certificate() (tls.Certificate, error) {
	key, err := x509.ParsePKCS8PrivateKey(k.KeyDER)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("keys: parse private key: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{k.CertDER},
		PrivateKey:  key,
	}, nil
}

// ComputeFingerprint returns the lower-case hex SHA-256 digest of certDER.
func ComputeFingerprint(certDER []byte) string {
	sum := sha256.Sum256(certDER)
	return hex.EncodeToString(sum[:])
}

// GetOrCreate loads the certificate/key pair from dir if present, or
// generates and persists a fresh self-signed Ed25519 identity for host
// otherwise. dir must already exist (see locations.KeyDir).
func GetOrCreate(dir, host string) (KeyDer, error) {
	if k, err := load(dir); err == nil {
		return k, nil
	}
	return generate(dir, host)
}

func load(dir string) (KeyDer, error) {
	certDER, err := os.ReadFile(filepath.Join(dir, "cert.der"))
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: read cert.der: %w", err)
	}
	keyDER, err := os.ReadFile(filepath.Join(dir, "key.der"))
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: read key.der: %w", err)
	}
	return KeyDer{CertDER: certDER, KeyDER: keyDER, Fingerprint: ComputeFingerprint(certDER)}, nil
}

func generate(dir, host string) (KeyDer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: generate ed25519 key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{host, commonName},
		NotBefore:    time.Now(),
		NotAfter:     time.Date(2049, 12, 31, 23, 59, 59, 0, time.UTC),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyDer{}, fmt.Errorf("keys: marshal private key: %w", err)
	}

	if err := writeFile(filepath.Join(dir, "cert.pem"), pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})); err != nil {
		return KeyDer{}, err
	}
	if err := writeFile(filepath.Join(dir, "key.pem"), pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})); err != nil {
		return KeyDer{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "cert.der"), certDER, 0o600); err != nil {
		return KeyDer{}, fmt.Errorf("keys: write cert.der: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "key.der"), keyDER, 0o600); err != nil {
		return KeyDer{}, fmt.Errorf("keys: write key.der: %w", err)
	}

	return KeyDer{CertDER: certDER, KeyDER: keyDER, Fingerprint: ComputeFingerprint(certDER)}, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("keys: write %s: %w", path, err)
	}
	return nil
}
