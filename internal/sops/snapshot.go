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
	"time"
)

// KeyState is one namespace's view of the SOPS key secret.
type KeyState struct {
	Available       bool
	Key             []byte
	SecretName      string
	Namespace       string
	ResourceVersion string
	LastChecked     time.Time
}

// KeySnapshot is the process-wide mirror of the SOPS key secrets, written
// only by the key watcher and read by every reconciliation. Lookup resolves
// a resource's namespace first and falls back to the controller namespace,
// so a single cluster-wide key and per-team keys both work.
type KeySnapshot struct {
	mu                sync.RWMutex
	entries           map[string]KeyState
	fallbackNamespace string
}

// NewKeySnapshot returns an empty snapshot with the given fallback namespace.
func NewKeySnapshot(fallbackNamespace string) *KeySnapshot {
	return &KeySnapshot{
		entries:           make(map[string]KeyState),
		fallbackNamespace: fallbackNamespace,
	}
}

// Set records the state observed for one namespace.
func (s *KeySnapshot) Set(st KeyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[st.Namespace] = st
}

// MarkAbsent records that no key secret exists in namespace.
func (s *KeySnapshot) MarkAbsent(namespace, secretName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[namespace] = KeyState{
		Available:   false,
		SecretName:  secretName,
		Namespace:   namespace,
		LastChecked: time.Now(),
	}
}

// Lookup returns the key state a resource in namespace should use: its own
// namespace's key when available, otherwise the fallback namespace's. The
// second return is false when neither namespace has ever been probed.
func (s *KeySnapshot) Lookup(namespace string) (KeyState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.entries[namespace]; ok && st.Available {
		return st, true
	}
	if st, ok := s.entries[s.fallbackNamespace]; ok && st.Available {
		return st, true
	}
	// Prefer the resource namespace's probe result for status mirroring.
	if st, ok := s.entries[namespace]; ok {
		return st, true
	}
	if st, ok := s.entries[s.fallbackNamespace]; ok {
		return st, true
	}
	return KeyState{}, false
}
