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

// Package config holds the immutable configuration values a connection
// uses when it establishes a transport: TLS verification and client
// certificate settings, and per-phase timeouts.
//
// Values in this package are never modified in place. Per-call overrides
// produce derived copies, so a connection's stored defaults stay intact
// across calls that override them.
package config
