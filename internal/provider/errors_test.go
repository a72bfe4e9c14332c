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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifiersSeeThroughWrapping(t *testing.T) {
	cause := errors.New("vendor said no")

	perm := fmt.Errorf("syncing service payments: %w", &PermissionError{Op: "reading", Name: "svc-DB_PASSWORD", Err: cause})
	assert.True(t, IsPermission(perm))
	assert.False(t, IsRateLimit(perm))
	assert.True(t, errors.Is(perm, cause))

	rate := fmt.Errorf("syncing service payments: %w", &RateLimitError{Op: "setting", Name: "svc-API_TOKEN", Err: cause})
	assert.True(t, IsRateLimit(rate))
	assert.False(t, IsPermission(rate))

	notFound := fmt.Errorf("purging: %w", &NotFoundError{Op: "deleting", Name: "svc-OLD", Err: cause})
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsOversize(notFound))
}

func TestErrorMessagesNameOperationAndTarget(t *testing.T) {
	err := &PermissionError{Op: "disabling", Name: "svc-DB_PASSWORD", Err: errors.New("403")}
	assert.Contains(t, err.Error(), "disabling svc-DB_PASSWORD")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestCheckSize(t *testing.T) {
	atLimit := strings.Repeat("x", MaxSecretBytesAzure)
	assert.NoError(t, checkSize("svc-KEY", atLimit, MaxSecretBytesAzure))

	err := checkSize("svc-KEY", atLimit+"x", MaxSecretBytesAzure)
	require.Error(t, err)
	assert.True(t, IsOversize(err))

	var oe *OversizeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "svc-KEY", oe.Name)
	assert.Equal(t, MaxSecretBytesAzure+1, oe.Size)
	assert.Equal(t, MaxSecretBytesAzure, oe.Limit)
}
