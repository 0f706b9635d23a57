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

package httpconn

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"

	"github.com/bufbuild/httpconn/config"
	"github.com/bufbuild/httpconn/negotiate"
	"github.com/bufbuild/httpconn/protocol"
)

// ReleaseFunc is notified when a connection becomes idle and can take
// another request. The argument is the connection that became idle.
type ReleaseFunc func(*Connection)

// binding is the protocol a connection is bound to. Its zero value is the
// unbound state; once set it never changes.
type binding struct {
	protocol protocol.Protocol
	conn     protocol.Conn
}

var _ http.RoundTripper = (*Connection)(nil)

// Connection is a single logical connection to one origin.
//
// No I/O happens until the first call to Send or Connect, which
// establishes the transport, negotiates HTTP/1.1 or HTTP/2 over it, and
// binds the connection to that protocol for the rest of its life.
//
// A Connection is not safe for concurrent use by multiple goroutines.
// Callers, typically a pool that lends it to one borrower at a time, must
// serialize calls.
type Connection struct {
	origin     Origin
	tls        config.TLS
	timeout    config.Timeout
	negotiator negotiate.Negotiator
	release    ReleaseFunc
	newHTTP1   protocol.NewFunc
	newHTTP2   protocol.NewFunc
	logger     *slog.Logger

	bound  binding
	closed bool
}

// New returns a connection to the given origin that uses the given
// options. It does not connect.
func New(origin Origin, options ...Option) *Connection {
	var opts connectionOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults(origin)
	return &Connection{
		origin:     origin,
		tls:        opts.tls,
		timeout:    *opts.timeout,
		negotiator: opts.negotiator,
		release:    opts.release,
		newHTTP1:   opts.newHTTP1,
		newHTTP2:   opts.newHTTP2,
		logger:     opts.logger,
	}
}

// Origin returns the origin the connection talks to.
func (c *Connection) Origin() Origin {
	return c.origin
}

// Connect establishes the transport and binds the connection to the
// negotiated protocol. Send calls it implicitly, so explicit calls are
// only needed to connect ahead of time.
//
// If the connection is already connected, Connect returns
// ErrAlreadyConnected. If it fails, the connection remains unconnected
// and Connect may be called again.
func (c *Connection) Connect(ctx context.Context, overrides ...CallOption) error {
	return c.connect(ctx, effectiveConfig(c.tls, c.timeout, overrides))
}

func (c *Connection) connect(ctx context.Context, call callConfig) error {
	if c.closed {
		return ErrConnectionClosed
	}
	if c.bound.protocol != protocol.Unknown {
		return ErrAlreadyConnected
	}
	var tlsConfig *tls.Config
	if c.origin.IsTLS() {
		var err error
		tlsConfig, err = call.tls.Load(ctx)
		if err != nil {
			c.logConnectError(ctx, err)
			return err
		}
	}
	transport, negotiated, err := c.negotiator.Negotiate(ctx, c.origin.Host, c.origin.Port, tlsConfig, call.timeout)
	if err != nil {
		c.logConnectError(ctx, err)
		return err
	}
	var releaser protocol.Releaser
	if c.release != nil {
		releaser = releaseHandle{conn: c, release: c.release}
	}
	newConn := c.newHTTP1
	if negotiated == protocol.HTTP2 {
		newConn = c.newHTTP2
	} else {
		negotiated = protocol.HTTP1
	}
	conn, err := newConn(transport, releaser)
	if err != nil {
		_ = transport.Close()
		c.logConnectError(ctx, err)
		return err
	}
	if conn == nil {
		_ = transport.Close()
		panic(&InvariantError{Op: "Connect", Reason: "protocol handler returned no connection"})
	}
	c.bound = binding{protocol: negotiated, conn: conn}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "connected",
		slog.String("origin", c.origin.String()),
		slog.String("protocol", negotiated.String()),
	)
	return nil
}

// Send sends the request over the connection, connecting first if needed,
// and returns the protocol's response as is. The request's context is used
// for connecting.
func (c *Connection) Send(req *http.Request, overrides ...CallOption) (*http.Response, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	call := effectiveConfig(c.tls, c.timeout, overrides)
	if c.bound.protocol == protocol.Unknown {
		if err := c.connect(req.Context(), call); err != nil {
			return nil, err
		}
	}
	return c.boundConn("Send").Send(req, call.timeout)
}

// RoundTrip implements http.RoundTripper by calling Send.
func (c *Connection) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Send(req)
}

// Close closes the connection. Closing an unconnected connection does
// nothing but prevent later use.
func (c *Connection) Close() error {
	c.closed = true
	if c.bound.protocol == protocol.Unknown {
		return nil
	}
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "closing",
		slog.String("origin", c.origin.String()),
		slog.String("protocol", c.bound.protocol.String()),
	)
	return c.bound.conn.Close()
}

// Protocol returns the protocol the connection is bound to, or
// protocol.Unknown if it has not connected.
func (c *Connection) Protocol() protocol.Protocol {
	return c.bound.protocol
}

// IsHTTP2 reports whether the connection is bound to HTTP/2.
func (c *Connection) IsHTTP2() bool {
	return c.bound.protocol == protocol.HTTP2
}

// IsClosed reports whether the connection is closed. It panics with an
// *InvariantError if the connection was never connected nor closed.
func (c *Connection) IsClosed() bool {
	if c.bound.protocol == protocol.Unknown && c.closed {
		return true
	}
	return c.boundConn("IsClosed").IsClosed()
}

// IsConnectionDropped reports whether the peer has gone away, so that a
// pool can discard the connection instead of reusing it. It panics with an
// *InvariantError if the connection was never connected nor closed.
func (c *Connection) IsConnectionDropped() bool {
	if c.bound.protocol == protocol.Unknown && c.closed {
		return true
	}
	return c.boundConn("IsConnectionDropped").IsConnectionDropped()
}

func (c *Connection) boundConn(op string) protocol.Conn {
	if c.bound.conn != nil {
		return c.bound.conn
	}
	panic(&InvariantError{Op: op, Reason: "connection is not connected"})
}

func (c *Connection) logConnectError(ctx context.Context, err error) {
	c.logger.LogAttrs(ctx, slog.LevelDebug, "connect failed",
		slog.String("origin", c.origin.String()),
		slog.Any("error", err),
	)
}

// releaseHandle is the protocol.Releaser given to a bound protocol
// connection. It carries the owning connection explicitly.
type releaseHandle struct {
	conn    *Connection
	release ReleaseFunc
}

func (h releaseHandle) Release() {
	h.release(h.conn)
}
