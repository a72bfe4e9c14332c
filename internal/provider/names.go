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

import "strings"

// SanitizeName maps an extracted key onto the provider identifier charset:
// characters outside [A-Za-z0-9_-] become underscores and runs of hyphens
// collapse to one. Case is preserved.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	prevHyphen := false
	for _, r := range name {
		switch {
		case r == '-':
			if prevHyphen {
				continue
			}
			b.WriteByte('-')
			prevHyphen = true
		case r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevHyphen = false
		default:
			b.WriteByte('_')
			prevHyphen = false
		}
	}
	return b.String()
}

// ConstructName joins the non-empty parts of prefix, key and suffix with
// hyphens and sanitizes the result. This is the single place provider names
// are derived, so status maps and provider state always agree.
func ConstructName(prefix, key, suffix string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, key, suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return SanitizeName(strings.Join(parts, "-"))
}
