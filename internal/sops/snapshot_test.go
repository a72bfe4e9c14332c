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

package sops

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotLookupPrefersOwnNamespace(t *testing.T) {
	s := NewKeySnapshot("smc-system")
	s.Set(KeyState{Available: true, Key: []byte("fallback"), Namespace: "smc-system", SecretName: "sops-gpg"})
	s.Set(KeyState{Available: true, Key: []byte("team"), Namespace: "team-a", SecretName: "sops-gpg"})

	st, ok := s.Lookup("team-a")
	require.True(t, ok)
	assert.Equal(t, []byte("team"), st.Key)
}

func TestSnapshotLookupFallsBack(t *testing.T) {
	s := NewKeySnapshot("smc-system")
	s.Set(KeyState{Available: true, Key: []byte("fallback"), Namespace: "smc-system", SecretName: "sops-gpg"})

	st, ok := s.Lookup("team-b")
	require.True(t, ok)
	assert.True(t, st.Available)
	assert.Equal(t, []byte("fallback"), st.Key)
}

func TestSnapshotAbsentNamespaceStillReported(t *testing.T) {
	s := NewKeySnapshot("smc-system")
	s.MarkAbsent("team-c", "sops-gpg")

	st, ok := s.Lookup("team-c")
	require.True(t, ok)
	assert.False(t, st.Available)
	assert.Equal(t, "sops-gpg", st.SecretName)
	assert.WithinDuration(t, time.Now(), st.LastChecked, time.Minute)
}

func TestSnapshotUnprobedNamespace(t *testing.T) {
	s := NewKeySnapshot("smc-system")

	_, ok := s.Lookup("never-seen")
	assert.False(t, ok)
}

func TestSnapshotFallbackUnavailableOwnAbsent(t *testing.T) {
	// Own namespace probed absent, fallback probed absent: report the own
	// namespace's probe so status mirrors point at the right place.
	s := NewKeySnapshot("smc-system")
	s.MarkAbsent("smc-system", "sops-gpg")
	s.MarkAbsent("team-d", "sops-gpg")

	st, ok := s.Lookup("team-d")
	require.True(t, ok)
	assert.False(t, st.Available)
	assert.Equal(t, "team-d", st.Namespace)
}

func TestSnapshotConcurrentReadersAndWriter(t *testing.T) {
	s := NewKeySnapshot("smc-system")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Set(KeyState{Available: i%2 == 0, Namespace: "ns", SecretName: "sops-gpg"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Lookup("ns")
		}
	}()
	wg.Wait()
}
