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

// Package backoff keeps a per-resource Fibonacci retry schedule. Entries are
// created lazily on first failure and dropped on success, so memory stays
// bounded by the number of currently-failing resources. State is in-memory
// only: after a controller restart every resource starts over at the initial
// delay.
package backoff

import (
	"sync"
	"time"
)

// Registry maps a resource identity ("namespace/name") to its position in the
// Fibonacci sequence. The sequence is computed in minutes (1, 1, 2, 3, 5,
// 8, ...) and capped; Next returns the capped value and advances.
type Registry struct {
	mu  sync.Mutex
	cap time.Duration
	seq map[string]*entry
}

type entry struct {
	prev, cur time.Duration
	failures  int
}

// NewRegistry returns a registry capped at cap. A non-positive cap falls back
// to ten minutes.
func NewRegistry(cap time.Duration) *Registry {
	if cap <= 0 {
		cap = 10 * time.Minute
	}
	return &Registry{cap: cap, seq: make(map[string]*entry)}
}

// Next returns the delay to wait before the next retry for id and advances
// the sequence. The first call yields one minute.
func (r *Registry) Next(id string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.seq[id]
	if !ok {
		e = &entry{prev: 0, cur: time.Minute}
		r.seq[id] = e
	}

	d := e.cur
	if d > r.cap {
		d = r.cap
	}

	e.prev, e.cur = e.cur, e.prev+e.cur
	e.failures++
	return d
}

// Reset drops the entry for id. Called on any successful terminal transition.
func (r *Registry) Reset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seq, id)
}

// Peek returns the delay Next would return, without advancing.
func (r *Registry) Peek(id string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.seq[id]
	if !ok {
		return time.Minute
	}
	if e.cur > r.cap {
		return r.cap
	}
	return e.cur
}

// Failures returns how many times Next has been called for id since the last
// reset.
func (r *Registry) Failures(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.seq[id]; ok {
		return e.failures
	}
	return 0
}

// Len reports how many resources currently hold backoff state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seq)
}
