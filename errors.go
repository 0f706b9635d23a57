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

import "errors"

var (
	// ErrAlreadyConnected is returned by Connect when the connection is
	// already bound to a protocol. A connection never negotiates twice.
	ErrAlreadyConnected = errors.New("httpconn: connection is already connected")
	// ErrConnectionClosed is returned when a closed connection is used.
	ErrConnectionClosed = errors.New("httpconn: connection is closed")
)

// InvariantError describes misuse of a connection that indicates a bug in
// the caller, such as asking an unconnected connection whether it is
// closed. It is never returned: methods panic with it.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return "httpconn: " + e.Op + ": " + e.Reason
}
