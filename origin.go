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
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

//nolint:gochecknoglobals
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"h2c":   80,
}

// Origin identifies the server a connection talks to. It is comparable and
// may be used as a map key, for example by pools that group connections.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// ParseOrigin parses an origin from a URL. Only the scheme, host, and port
// are used. A missing scheme means "http", and a missing port means the
// scheme's default port.
func ParseOrigin(rawURL string) (Origin, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("httpconn: invalid origin: %w", err)
	}
	return OriginFromURL(parsed)
}

// OriginFromURL returns the origin of the given URL.
func OriginFromURL(dest *url.URL) (Origin, error) {
	scheme := strings.ToLower(dest.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	defaultPort, ok := defaultPorts[scheme]
	if !ok {
		return Origin{}, fmt.Errorf("httpconn: unsupported URL scheme %q", dest.Scheme)
	}
	host := strings.ToLower(dest.Hostname())
	if host == "" {
		return Origin{}, fmt.Errorf("httpconn: URL %q has no host", dest.String())
	}
	port := defaultPort
	if portStr := dest.Port(); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Origin{}, fmt.Errorf("httpconn: invalid port %q", portStr)
		}
	}
	return Origin{Scheme: scheme, Host: host, Port: port}, nil
}

// IsTLS reports whether connections to the origin use TLS.
func (o Origin) IsTLS() bool {
	return o.Scheme == "https"
}

// HostPort returns the origin's "host:port" address.
func (o Origin) HostPort() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// String returns the origin as "scheme://host:port".
func (o Origin) String() string {
	return o.Scheme + "://" + o.HostPort()
}
