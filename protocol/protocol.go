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

// Package protocol defines the contract between a connection and the
// protocol-specific handler it delegates to once the transport's protocol
// is known. Implementations live in the h1 and h2 sub-packages.
package protocol

import (
	"fmt"
	"net"
	"net/http"

	"github.com/bufbuild/httpconn/config"
)

// Protocol identifies the HTTP version spoken over a transport.
type Protocol int

const (
	// Unknown is the protocol of a connection that is not yet bound.
	Unknown = Protocol(iota)
	HTTP1
	HTTP2
)

const (
	alpnHTTP1 = "http/1.1"
	alpnHTTP2 = "h2"
)

func (p Protocol) String() string {
	switch p {
	case Unknown:
		return "unknown"
	case HTTP1:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	default:
		return fmt.Sprintf("Protocol(%d)", p)
	}
}

// ALPNProtocols returns the protocol IDs offered during a TLS handshake,
// most preferred first.
func ALPNProtocols() []string {
	return []string{alpnHTTP2, alpnHTTP1}
}

// FromALPN maps a negotiated ALPN protocol ID to a Protocol. An empty ID,
// from a server that does not support ALPN, means HTTP/1.1.
func FromALPN(negotiated string) Protocol {
	if negotiated == alpnHTTP2 {
		return HTTP2
	}
	return HTTP1
}

// Conn is a protocol-specific connection over an established transport.
type Conn interface {
	// Send issues the request and returns the response once its headers
	// have been received. The response body is read from the transport as
	// the caller consumes it.
	Send(req *http.Request, timeout config.Timeout) (*http.Response, error)
	// Close closes the connection and its transport. It is safe to call
	// more than once.
	Close() error
	// IsClosed reports whether the connection has been closed, either by
	// Close or because the protocol decided it cannot be reused.
	IsClosed() bool
	// IsConnectionDropped probes whether the peer has gone away. Pools use
	// it to discard dead connections before handing them out.
	IsConnectionDropped() bool
}

// Releaser is notified by a Conn when it has no outstanding exchanges and
// can take a new request.
type Releaser interface {
	Release()
}

// NewFunc creates a Conn over the given transport. The releaser may be nil.
type NewFunc func(transport net.Conn, releaser Releaser) (Conn, error)
