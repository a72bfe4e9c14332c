/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already clean", in: "DB_PASSWORD", want: "DB_PASSWORD"},
		{name: "case preserved", in: "MixedCase-123", want: "MixedCase-123"},
		{name: "dots become underscores", in: "log.level", want: "log_level"},
		{name: "slashes become underscores", in: "path/to/key", want: "path_to_key"},
		{name: "hyphen runs collapse", in: "a---b--c", want: "a-b-c"},
		{name: "specials become underscores", in: "key!with spaces", want: "key_with_spaces"},
		{name: "underscores do not collapse", in: "a__b", want: "a__b"},
		{name: "unicode becomes underscores", in: "clé", want: "cl_"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestConstructName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		suffix string
		want   string
	}{
		{name: "service prefix", prefix: "svc", key: "DB_PASSWORD", want: "svc-DB_PASSWORD"},
		{name: "all parts", prefix: "svc", key: "DB_PASSWORD", suffix: "prod", want: "svc-DB_PASSWORD-prod"},
		{name: "no prefix", key: "API_TOKEN", want: "API_TOKEN"},
		{name: "suffix only", key: "API_TOKEN", suffix: "dev", want: "API_TOKEN-dev"},
		{name: "sanitized after join", prefix: "billing", key: "log.level", want: "billing-log_level"},
		{name: "hyphenated parts collapse", prefix: "svc-", key: "-KEY", want: "svc-KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstructName(tt.prefix, tt.key, tt.suffix))
		})
	}
}
