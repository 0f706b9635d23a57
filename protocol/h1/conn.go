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

// Package h1 implements protocol.Conn for HTTP/1.1. A connection carries
// one exchange at a time and becomes reusable once the response body has
// been consumed.
package h1

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bufbuild/httpconn/config"
	"github.com/bufbuild/httpconn/protocol"
	"golang.org/x/net/http/httpguts"
)

// ErrBusy is returned by Send while a previous response is still being read.
var ErrBusy = errors.New("h1: connection is busy with another request")

// probeTimeout bounds the read used by IsConnectionDropped. A live idle
// connection has nothing to read, so the probe always waits this long.
const probeTimeout = time.Millisecond

type state int

const (
	stateIdle state = iota
	stateActive
	stateClosed
)

var _ protocol.Conn = (*Conn)(nil)

// Conn is an HTTP/1.1 connection.
type Conn struct {
	transport net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	releaser  protocol.Releaser

	mu sync.Mutex
	// +checklocks:mu
	state state
}

// New returns an HTTP/1.1 connection over transport. If releaser is not
// nil, it is notified each time an exchange completes and the connection
// can be reused.
func New(transport net.Conn, releaser protocol.Releaser) *Conn {
	return &Conn{
		transport: transport,
		reader:    bufio.NewReader(transport),
		writer:    bufio.NewWriter(transport),
		releaser:  releaser,
	}
}

// NewConn is New as a protocol.NewFunc.
func NewConn(transport net.Conn, releaser protocol.Releaser) (protocol.Conn, error) {
	return New(transport, releaser), nil
}

// Send writes req and reads the response headers. The caller must consume
// or close the response body before the connection can be used again.
// Cancelling the request's context closes the connection. A 101 Switching
// Protocols response hands the transport over: its body is an
// io.ReadWriteCloser, and the connection is not released.
func (c *Conn) Send(req *http.Request, timeout config.Timeout) (*http.Response, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	ctx := req.Context()
	stop := context.AfterFunc(ctx, func() {
		// unblocks whatever I/O is in flight
		_ = c.Close()
	})
	resp, err := c.roundTrip(req, timeout)
	if err != nil {
		stop()
		_ = c.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusSwitchingProtocols {
		// the transport now speaks another protocol and is never reused
		stop()
		_ = c.transport.SetDeadline(time.Time{})
		resp.Body = &switchedBody{conn: c}
		return resp, nil
	}
	resp.Body = &body{
		ReadCloser:  resp.Body,
		conn:        c,
		readTimeout: timeout.Read,
		reusable:    !resp.Close && !req.Close && !httpguts.HeaderValuesContainsToken(req.Header["Connection"], "close"),
		stop:        stop,
	}
	return resp, nil
}

func (c *Conn) roundTrip(req *http.Request, timeout config.Timeout) (*http.Response, error) {
	if err := c.transport.SetWriteDeadline(config.Deadline(time.Now(), timeout.Write)); err != nil {
		return nil, err
	}
	if err := req.Write(c.writer); err != nil {
		return nil, err
	}
	if err := c.writer.Flush(); err != nil {
		return nil, err
	}
	if err := c.transport.SetReadDeadline(config.Deadline(time.Now(), timeout.Read)); err != nil {
		return nil, err
	}
	for {
		resp, err := http.ReadResponse(c.reader, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != http.StatusSwitchingProtocols {
			// interim response; the final one follows
			continue
		}
		return resp, nil
	}
}

func (c *Conn) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateActive:
		return ErrBusy
	case stateClosed:
		return net.ErrClosed
	case stateIdle:
	}
	c.state = stateActive
	return nil
}

func (c *Conn) finish(reusable bool) {
	if !reusable {
		_ = c.Close()
		return
	}
	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		return
	}
	c.state = stateIdle
	_ = c.transport.SetDeadline(time.Time{})
	c.mu.Unlock()
	if c.releaser != nil {
		c.releaser.Release()
	}
}

// Close closes the connection and its transport. Calling Close more than
// once does nothing.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()
	return c.transport.Close()
}

// IsClosed reports whether Close was called, or the connection was closed
// after an error or a non-reusable exchange.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// IsConnectionDropped reports whether an idle connection has been closed
// by the peer, or has received data nobody asked for. A connection in the
// middle of an exchange is never reported as dropped.
func (c *Conn) IsConnectionDropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateClosed:
		return true
	case stateActive:
		return false
	case stateIdle:
	}
	if c.reader.Buffered() > 0 {
		return true
	}
	if err := c.transport.SetReadDeadline(time.Now().Add(probeTimeout)); err != nil {
		return true
	}
	defer func() {
		_ = c.transport.SetReadDeadline(time.Time{})
	}()
	_, err := c.reader.Peek(1)
	var netErr net.Error
	return !errors.As(err, &netErr) || !netErr.Timeout()
}

type body struct {
	io.ReadCloser
	conn        *Conn
	readTimeout time.Duration
	reusable    bool
	stop        func() bool

	// +checkatomic
	done atomic.Bool
}

func (b *body) Read(p []byte) (int, error) {
	if b.readTimeout > 0 {
		_ = b.conn.transport.SetReadDeadline(time.Now().Add(b.readTimeout))
	}
	n, err := b.ReadCloser.Read(p)
	if errors.Is(err, io.EOF) {
		b.finish(b.reusable)
	} else if err != nil {
		b.finish(false)
	}
	return n, err
}

// Close drains what is left of a length-delimited body, so the connection
// stays reusable when that succeeds.
func (b *body) Close() error {
	err := b.ReadCloser.Close()
	b.finish(err == nil && b.reusable)
	return err
}

func (b *body) finish(reusable bool) {
	if b.done.CompareAndSwap(false, true) {
		// a false stop means cancellation is already closing the connection
		reusable = b.stop() && reusable
		b.conn.finish(reusable)
	}
}

// switchedBody is the body of a 101 Switching Protocols response. It reads
// from and writes to the transport directly, like the body net/http returns
// for upgrades, and closing it closes the connection.
type switchedBody struct {
	conn *Conn
}

var _ io.ReadWriteCloser = (*switchedBody)(nil)

func (b *switchedBody) Read(p []byte) (int, error) {
	return b.conn.reader.Read(p)
}

func (b *switchedBody) Write(p []byte) (int, error) {
	return b.conn.transport.Write(p)
}

func (b *switchedBody) Close() error {
	return b.conn.Close()
}
