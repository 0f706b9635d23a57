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
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrigin(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw      string
		expected Origin
		tls      bool
		str      string
	}{
		{
			raw:      "https://example.test",
			expected: Origin{Scheme: "https", Host: "example.test", Port: 443},
			tls:      true,
			str:      "https://example.test:443",
		},
		{
			raw:      "HTTP://Example.Test:8080/some/path?q=1",
			expected: Origin{Scheme: "http", Host: "example.test", Port: 8080},
			str:      "http://example.test:8080",
		},
		{
			raw:      "example.test:9000",
			expected: Origin{Scheme: "http", Host: "example.test", Port: 9000},
			str:      "http://example.test:9000",
		},
		{
			raw:      "h2c://[::1]",
			expected: Origin{Scheme: "h2c", Host: "::1", Port: 80},
			str:      "h2c://[::1]:80",
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.raw, func(t *testing.T) {
			t.Parallel()
			origin, err := ParseOrigin(testCase.raw)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, origin)
			assert.Equal(t, testCase.tls, origin.IsTLS())
			assert.Equal(t, testCase.str, origin.String())
		})
	}
}

func TestParseOriginErrors(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"ftp://example.test",
		"https://",
		"https://example.test:0",
		"https://example.test:70000",
		"https://example.test:https",
		"http://%zz",
	} {
		_, err := ParseOrigin(raw)
		assert.Error(t, err, raw)
	}
}

func TestOriginFromURL(t *testing.T) {
	t.Parallel()

	origin, err := OriginFromURL(&url.URL{Host: "example.test"})
	require.NoError(t, err)
	assert.Equal(t, Origin{Scheme: "http", Host: "example.test", Port: 80}, origin)
	assert.Equal(t, "example.test:80", origin.HostPort())

	// origins are comparable and usable as map keys
	seen := map[Origin]bool{origin: true}
	again, err := ParseOrigin("http://EXAMPLE.test:80/")
	require.NoError(t, err)
	assert.True(t, seen[again])
}
