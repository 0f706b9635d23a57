// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type verifyMode int

const (
	verifyUnset verifyMode = iota
	verifySystem
	verifyNone
	verifyCA
)

//nolint:gochecknoglobals
var (
	// VerifySystem verifies servers against the system trust store.
	VerifySystem = Verify{mode: verifySystem}
	// VerifyNone disables server certificate verification.
	VerifyNone = Verify{mode: verifyNone}
)

// Verify is a server certificate verification mode. The zero value is
// "not set": as a stored default it behaves like VerifySystem, and as an
// override it leaves the stored default in effect.
type Verify struct {
	mode verifyMode
	path string
}

// VerifyCA verifies servers against the certificates found at path, which
// is either a PEM file or a directory of PEM files.
func VerifyCA(path string) Verify {
	return Verify{mode: verifyCA, path: path}
}

// IsSet reports whether v was explicitly chosen.
func (v Verify) IsSet() bool {
	return v.mode != verifyUnset
}

// Path returns the trust store path for a mode created with VerifyCA.
func (v Verify) Path() string {
	return v.path
}

func (v Verify) String() string {
	switch v.mode {
	case verifyUnset:
		return "unset"
	case verifySystem:
		return "system"
	case verifyNone:
		return "none"
	case verifyCA:
		return "ca:" + v.path
	default:
		return fmt.Sprintf("Verify(%d)", v.mode)
	}
}

// ClientCert is the certificate a client presents to servers that ask for
// one. Either an already loaded Certificate or PEM files may be given. If
// only CertFile is set, it must contain both the certificate and its key.
type ClientCert struct {
	CertFile    string
	KeyFile     string
	Certificate *tls.Certificate
}

// IsZero reports whether no client certificate is configured.
func (c ClientCert) IsZero() bool {
	return c.CertFile == "" && c.KeyFile == "" && c.Certificate == nil
}

// TLS is the TLS configuration of a connection.
type TLS struct {
	Verify Verify
	Cert   ClientCert
}

// WithOverrides returns a copy of t in which the given verify mode and
// client certificate replace the stored ones, if set.
func (t TLS) WithOverrides(verify Verify, cert ClientCert) TLS {
	if verify.IsSet() {
		t.Verify = verify
	}
	if !cert.IsZero() {
		t.Cert = cert
	}
	return t
}

// Load builds a TLS client configuration. It reads trust stores and key
// material from disk, so the given context is checked first to avoid the
// work for callers that have already given up.
func (t TLS) Load(ctx context.Context) (*tls.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	switch t.Verify.mode {
	case verifyNone:
		config.InsecureSkipVerify = true //nolint:gosec
	case verifyCA:
		pool, err := loadCertPool(t.Verify.Path())
		if err != nil {
			return nil, err
		}
		config.RootCAs = pool
	case verifyUnset, verifySystem:
		// nil RootCAs selects the system pool
	}
	cert, err := t.Cert.load()
	if err != nil {
		return nil, err
	}
	if cert != nil {
		config.Certificates = []tls.Certificate{*cert}
	}
	return config, nil
}

func (c ClientCert) load() (*tls.Certificate, error) {
	if c.Certificate != nil {
		return c.Certificate, nil
	}
	if c.CertFile == "" {
		if c.KeyFile != "" {
			return nil, errors.New("config: client key file given without a certificate file")
		}
		return nil, nil //nolint:nilnil
	}
	keyFile := c.KeyFile
	if keyFile == "" {
		keyFile = c.CertFile
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load client certificate %q: %w", c.CertFile, err)
	}
	return &cert, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read trust store: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read trust store: %w", err)
		}
		files = files[:0]
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}
	pool := x509.NewCertPool()
	var found bool
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read trust store: %w", err)
		}
		if pool.AppendCertsFromPEM(data) {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("config: no certificates found in %q", path)
	}
	return pool, nil
}
