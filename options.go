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
	"log/slog"

	"github.com/bufbuild/httpconn/config"
	"github.com/bufbuild/httpconn/negotiate"
	"github.com/bufbuild/httpconn/protocol"
	"github.com/bufbuild/httpconn/protocol/h1"
	"github.com/bufbuild/httpconn/protocol/h2"
)

// Option is an option used to customize the behavior of a connection.
type Option interface {
	apply(*connectionOptions)
}

// WithVerify configures how the server's certificate is verified. If no
// WithVerify option is provided, servers are verified against the system
// trust store.
func WithVerify(verify config.Verify) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.tls.Verify = verify
	})
}

// WithClientCert configures the certificate presented to servers that
// request client authentication.
func WithClientCert(cert config.ClientCert) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.tls.Cert = cert
	})
}

// WithTimeout configures the default timeouts. If no WithTimeout option is
// provided, [config.DefaultTimeout] is used.
func WithTimeout(timeout config.Timeout) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.timeout = &timeout
	})
}

// WithNegotiator configures how the transport is established. If no
// WithNegotiator option is provided, a [negotiate.Dialer] is used. For
// origins with the "h2c" scheme, that dialer speaks HTTP/2 with prior
// knowledge over plaintext.
func WithNegotiator(negotiator negotiate.Negotiator) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.negotiator = negotiator
	})
}

// WithReleaseFunc configures a function that is called each time the
// connection becomes idle and can take another request. It is called
// by the protocol layer, from whichever goroutine finished the exchange,
// and receives the connection itself.
func WithReleaseFunc(release ReleaseFunc) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.release = release
	})
}

// WithProtocolHandlers configures how protocol connections are created
// once negotiation has picked a protocol. A nil function keeps the default
// for that protocol: [h1.NewConn] for HTTP/1.1 and [h2.NewFunc] with no
// options for HTTP/2.
func WithProtocolHandlers(http1, http2 protocol.NewFunc) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.newHTTP1 = http1
		opts.newHTTP2 = http2
	})
}

// WithLogger configures the logger that receives connection lifecycle
// events, all at debug level. If no WithLogger option is provided,
// [slog.Default] is used.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(opts *connectionOptions) {
		opts.logger = logger
	})
}

type optionFunc func(*connectionOptions)

func (f optionFunc) apply(opts *connectionOptions) {
	f(opts)
}

type connectionOptions struct {
	tls        config.TLS
	timeout    *config.Timeout
	negotiator negotiate.Negotiator
	release    ReleaseFunc
	newHTTP1   protocol.NewFunc
	newHTTP2   protocol.NewFunc
	logger     *slog.Logger
}

func (opts *connectionOptions) applyDefaults(origin Origin) {
	if !opts.tls.Verify.IsSet() {
		opts.tls.Verify = config.VerifySystem
	}
	if opts.timeout == nil {
		opts.timeout = &config.DefaultTimeout
	}
	if opts.negotiator == nil {
		if origin.Scheme == "h2c" {
			opts.negotiator = negotiate.NewDialer(negotiate.WithPlaintextHTTP2())
		} else {
			opts.negotiator = negotiate.NewDialer()
		}
	}
	if opts.newHTTP1 == nil {
		opts.newHTTP1 = h1.NewConn
	}
	if opts.newHTTP2 == nil {
		opts.newHTTP2 = h2.NewFunc()
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
}

// CallOption overrides a connection's configuration for a single call to
// Connect or Send. The connection's stored configuration is not changed.
type CallOption interface {
	applyCall(*callOptions)
}

// OverrideVerify overrides the verification mode for one call.
func OverrideVerify(verify config.Verify) CallOption {
	return callOptionFunc(func(opts *callOptions) {
		opts.verify = verify
	})
}

// OverrideClientCert overrides the client certificate for one call.
func OverrideClientCert(cert config.ClientCert) CallOption {
	return callOptionFunc(func(opts *callOptions) {
		opts.cert = cert
	})
}

// OverrideTimeout overrides the timeouts for one call.
func OverrideTimeout(timeout config.Timeout) CallOption {
	return callOptionFunc(func(opts *callOptions) {
		opts.timeout = &timeout
	})
}

type callOptionFunc func(*callOptions)

func (f callOptionFunc) applyCall(opts *callOptions) {
	f(opts)
}

type callOptions struct {
	verify  config.Verify
	cert    config.ClientCert
	timeout *config.Timeout
}

// callConfig is the configuration in effect for one call.
type callConfig struct {
	tls     config.TLS
	timeout config.Timeout
}

func effectiveConfig(tls config.TLS, timeout config.Timeout, overrides []CallOption) callConfig {
	var opts callOptions
	for _, opt := range overrides {
		opt.applyCall(&opts)
	}
	if opts.timeout != nil {
		timeout = *opts.timeout
	}
	return callConfig{
		tls:     tls.WithOverrides(opts.verify, opts.cert),
		timeout: timeout,
	}
}
