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

import "time"

// DefaultTimeout is used by connections that are not configured with an
// explicit timeout.
//
//nolint:gochecknoglobals
var DefaultTimeout = UniformTimeout(5 * time.Second)

// Timeout holds the time limits for each phase of an exchange. A zero
// duration means that phase is unbounded.
type Timeout struct {
	// Connect bounds establishing the transport, including the TLS handshake.
	Connect time.Duration
	// Read bounds each read from the transport, including waiting for
	// response headers.
	Read time.Duration
	// Write bounds writing the request.
	Write time.Duration
	// Pool bounds how long a caller waits for a pooled connection. It is
	// carried for pools and not enforced by a connection.
	Pool time.Duration
}

// UniformTimeout returns a Timeout that uses d for every phase.
func UniformTimeout(d time.Duration) Timeout {
	return Timeout{Connect: d, Read: d, Write: d, Pool: d}
}

// Deadline returns the absolute deadline for a phase that starts at now
// and is bounded by d. The zero time, meaning no deadline, is returned
// when d is zero.
func Deadline(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return now.Add(d)
}
