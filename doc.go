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

// Package httpconn provides a connection to a single HTTP origin that
// speaks HTTP/1.1 or HTTP/2, whichever the server agrees to.
//
// A [Connection] is created with [New] and does no I/O until it is first
// used. The first call to [Connection.Send] (or an explicit call to
// [Connection.Connect]) establishes the transport through a
// [negotiate.Negotiator], which reports the protocol chosen during the TLS
// handshake (ALPN) or, for plaintext, the protocol the negotiator was
// configured for. The connection is then bound to a protocol connection
// from the [h1] or [h2] package for the rest of its life, and every request
// is delegated to it.
//
//	origin, err := httpconn.ParseOrigin("https://example.com")
//	if err != nil {
//	    return err
//	}
//	conn := httpconn.New(origin)
//	defer conn.Close()
//	resp, err := conn.Send(req)
//
// # Pools
//
// A Connection is designed to be owned by a pool, which is outside the
// scope of this package. The pool supplies a [ReleaseFunc] with
// [WithReleaseFunc], and the protocol connection calls it, with the
// Connection as argument, whenever an exchange finishes and the connection
// can be reused. Before lending out an idle connection, the pool can call
// [Connection.IsConnectionDropped] to discard connections the server has
// closed.
//
// A Connection is not safe for concurrent use. Pools hand each connection
// to one borrower at a time.
//
// # Schemes
//
// Origins with "http" and "https" schemes are supported, plus "h2c", which
// selects HTTP/2 over plaintext with prior knowledge. Only "https" origins
// use TLS.
//
// [h1]: https://pkg.go.dev/github.com/bufbuild/httpconn/protocol/h1
// [h2]: https://pkg.go.dev/github.com/bufbuild/httpconn/protocol/h2
package httpconn
