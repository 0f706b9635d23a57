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

// Package h2 implements protocol.Conn for HTTP/2 using the client
// connection of golang.org/x/net/http2. A connection multiplexes any number
// of concurrent exchanges and is released once none are outstanding.
package h2

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/bufbuild/httpconn/config"
	"github.com/bufbuild/httpconn/internal"
	"github.com/bufbuild/httpconn/protocol"
	"golang.org/x/net/http2"
)

var _ protocol.Conn = (*Conn)(nil)

// Option customizes the HTTP/2 session created by New.
type Option interface {
	apply(*connOptions)
}

// WithReadIdleTimeout enables health checking: after the given duration
// without receiving any frame, a ping is sent, and the session is closed
// if no reply arrives within pingTimeout. If pingTimeout is zero, the
// x/net default of 15 seconds applies.
func WithReadIdleTimeout(readIdleTimeout, pingTimeout time.Duration) Option {
	return optionFunc(func(opts *connOptions) {
		opts.readIdleTimeout = readIdleTimeout
		opts.pingTimeout = pingTimeout
	})
}

// WithWriteByteTimeout closes the session if a write makes no progress
// for the given duration. HTTP/2 shares one transport among all streams,
// so unlike HTTP/1.1 the write timeout is a property of the session and
// cannot vary per request.
func WithWriteByteTimeout(d time.Duration) Option {
	return optionFunc(func(opts *connOptions) {
		opts.writeByteTimeout = d
	})
}

type optionFunc func(*connOptions)

func (f optionFunc) apply(opts *connOptions) {
	f(opts)
}

type connOptions struct {
	readIdleTimeout  time.Duration
	pingTimeout      time.Duration
	writeByteTimeout time.Duration
}

// Conn is an HTTP/2 connection.
type Conn struct {
	session  *http2.ClientConn
	releaser protocol.Releaser
	clock    internal.Clock

	// +checkatomic
	active atomic.Int32
	// +checkatomic
	closed atomic.Bool
}

// New starts an HTTP/2 session over transport, which must already speak
// HTTP/2: negotiated with ALPN, or cleartext with prior knowledge. If the
// session cannot be started, the error is returned and the transport is
// left for the caller to close.
func New(transport net.Conn, releaser protocol.Releaser, options ...Option) (*Conn, error) {
	var opts connOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	t := &http2.Transport{
		AllowHTTP:        true,
		ReadIdleTimeout:  opts.readIdleTimeout,
		PingTimeout:      opts.pingTimeout,
		WriteByteTimeout: opts.writeByteTimeout,
	}
	session, err := t.NewClientConn(transport)
	if err != nil {
		return nil, err
	}
	return &Conn{
		session:  session,
		releaser: releaser,
		clock:    internal.NewRealClock(),
	}, nil
}

// NewFunc returns a protocol.NewFunc that creates connections with the
// given options.
func NewFunc(options ...Option) protocol.NewFunc {
	return func(transport net.Conn, releaser protocol.Releaser) (protocol.Conn, error) {
		return New(transport, releaser, options...)
	}
}

// Send opens a stream for req. The read timeout bounds the wait for the
// response headers; when it expires only this stream is abandoned.
func (c *Conn) Send(req *http.Request, timeout config.Timeout) (*http.Response, error) {
	if c.closed.Load() {
		return nil, net.ErrClosed
	}
	if req.URL.Scheme == "h2c" {
		req = req.Clone(req.Context())
		req.URL.Scheme = "http"
	}
	ctx, cancel := context.WithCancel(req.Context())
	var timedOut atomic.Bool
	var timer internal.Timer
	if timeout.Read > 0 {
		timer = c.clock.AfterFunc(timeout.Read, func() {
			timedOut.Store(true)
			cancel()
		})
	}
	c.active.Add(1)
	resp, err := c.session.RoundTrip(req.WithContext(ctx))
	if timer != nil {
		timer.Stop()
	}
	if timedOut.Load() {
		if err == nil {
			_ = resp.Body.Close()
		}
		err = fmt.Errorf("h2: no response headers within %v: %w", timeout.Read, os.ErrDeadlineExceeded)
	}
	if err != nil {
		cancel()
		c.streamDone()
		return nil, err
	}
	resp.Body = &hookReadCloser{ReadCloser: resp.Body, hook: func() {
		cancel()
		c.streamDone()
	}}
	return resp, nil
}

func (c *Conn) streamDone() {
	if c.active.Add(-1) == 0 && c.releaser != nil && !c.IsClosed() {
		c.releaser.Release()
	}
}

// Close closes the session, failing any streams still in flight.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.session.Close()
}

// IsClosed reports whether the session is closed, by Close or because the
// transport failed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load() || c.session.State().Closed
}

// IsConnectionDropped reports whether the session can no longer take new
// streams, because it was closed or the server sent GOAWAY.
func (c *Conn) IsConnectionDropped() bool {
	if c.closed.Load() {
		return true
	}
	state := c.session.State()
	return state.Closed || state.Closing
}

type hookReadCloser struct {
	io.ReadCloser
	hook func()

	// +checkatomic
	closed atomic.Bool
}

func (h *hookReadCloser) done() {
	if h.closed.CompareAndSwap(false, true) {
		h.hook()
	}
}

func (h *hookReadCloser) Read(p []byte) (n int, err error) {
	n, err = h.ReadCloser.Read(p)
	if err != nil {
		// EOF or a stream error; either way the stream is finished
		h.done()
	}
	return n, err
}

func (h *hookReadCloser) Close() error {
	err := h.ReadCloser.Close()
	h.done()
	return err
}
