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
	"errors"
	"fmt"
)

// PermissionError is a 403-class vendor response: the operator's identity
// lacks access to the target resource.
type PermissionError struct {
	Op   string
	Name string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s: permission denied: %v", e.Op, e.Name, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// IsPermission reports whether err carries a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// RateLimitError is a 429-class vendor response.
type RateLimitError struct {
	Op   string
	Name string
	Err  error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limited: %v", e.Op, e.Name, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err carries a RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// OversizeError rejects a payload above the vendor ceiling before any
// network call. It is permanent: retrying cannot shrink the value.
type OversizeError struct {
	Name  string
	Size  int
	Limit int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("value for %s is %d bytes, provider limit is %d", e.Name, e.Size, e.Limit)
}

// IsOversize reports whether err carries an OversizeError.
func IsOversize(err error) bool {
	var oe *OversizeError
	return errors.As(err, &oe)
}

// NotFoundError is a 404-class vendor response. Read paths absorb it into a
// found=false return; it only escapes on operations that require the target
// to exist.
type NotFoundError struct {
	Op   string
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found: %v", e.Op, e.Name, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func checkSize(name, value string, limit int) error {
	if len(value) > limit {
		return &OversizeError{Name: name, Size: len(value), Limit: limit}
	}
	return nil
}
