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

// Package negotiate establishes transports and determines which HTTP
// protocol they speak.
//
// The [Negotiator] interface is what a connection consumes. [Dialer] is
// the default implementation: it dials TCP, performs the TLS handshake when
// given a TLS configuration, and reads the protocol from ALPN. Plaintext
// transports speak HTTP/1.1 unless the dialer was created with
// [WithPlaintextHTTP2], in which case they speak HTTP/2 with prior
// knowledge (also known as "h2c").
package negotiate

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/bufbuild/httpconn/config"
	"github.com/bufbuild/httpconn/protocol"
)

//nolint:gochecknoglobals
var (
	defaultDialer = &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
)

// Negotiator establishes a transport to host:port and reports the protocol
// negotiated over it. A nil tlsConfig means the transport is plaintext.
// The connect timeout covers the whole operation, TLS handshake included.
//
// Implementations must not leave a transport open when they return an
// error.
type Negotiator interface {
	Negotiate(
		ctx context.Context,
		host string,
		port int,
		tlsConfig *tls.Config,
		timeout config.Timeout,
	) (net.Conn, protocol.Protocol, error)
}

// DialerOption is an option used to customize a Dialer.
type DialerOption interface {
	apply(*Dialer)
}

// WithDialFunc configures the function used to establish TCP connections.
// If no WithDialFunc option is provided, a default [net.Dialer] is used
// that uses a 30-second dial timeout and configures the connection to use
// TCP keep-alive every 30 seconds.
func WithDialFunc(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) DialerOption {
	return dialerOptionFunc(func(d *Dialer) {
		d.dialFunc = dialFunc
	})
}

// WithPlaintextHTTP2 makes plaintext transports speak HTTP/2 with prior
// knowledge instead of HTTP/1.1.
func WithPlaintextHTTP2() DialerOption {
	return dialerOptionFunc(func(d *Dialer) {
		d.plaintext = protocol.HTTP2
	})
}

type dialerOptionFunc func(*Dialer)

func (f dialerOptionFunc) apply(d *Dialer) {
	f(d)
}

// Dialer is the default Negotiator.
type Dialer struct {
	dialFunc  func(ctx context.Context, network, addr string) (net.Conn, error)
	plaintext protocol.Protocol
}

var _ Negotiator = (*Dialer)(nil)

// NewDialer returns a new Dialer that uses the given options.
func NewDialer(options ...DialerOption) *Dialer {
	dialer := &Dialer{plaintext: protocol.HTTP1}
	for _, opt := range options {
		opt.apply(dialer)
	}
	if dialer.dialFunc == nil {
		dialer.dialFunc = defaultDialer.DialContext
	}
	return dialer
}

// Negotiate dials host and port and, when tlsConfig is not nil, performs a
// TLS handshake offering h2 and http/1.1. The connect timeout covers both
// steps.
func (d *Dialer) Negotiate(
	ctx context.Context,
	host string,
	port int,
	tlsConfig *tls.Config,
	timeout config.Timeout,
) (net.Conn, protocol.Protocol, error) {
	if timeout.Connect > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout.Connect)
		defer cancel()
	}
	conn, err := d.dialFunc(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, protocol.Unknown, err
	}
	if tlsConfig == nil {
		return conn, d.plaintext, nil
	}
	tlsConfig = tlsConfig.Clone()
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = protocol.ALPNProtocols()
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, protocol.Unknown, err
	}
	return tlsConn, protocol.FromALPN(tlsConn.ConnectionState().NegotiatedProtocol), nil
}
