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

// Package artifact resolves the on-disk source tree for a SecretManagerConfig.
// A Flux GitRepository source is materialized by downloading and unpacking the
// artifact its status advertises; an Argo CD Application source is cloned with
// the git binary. Either way the caller gets a local path plus the revision it
// corresponds to, and concurrent resolutions of the same source serialize
// through a keyed lock so one download happens at a time.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

// revisionMarker is the file a successful resolve drops into the returned
// tree so cached lookups can report the revision without network I/O.
const revisionMarker = ".smc-revision"

// Artifact is a resolved source tree.
type Artifact struct {
	// LocalPath is the directory holding the source content.
	LocalPath string

	// Revision identifies the resolved content, e.g. "main@sha1:abc123".
	Revision string
}

// Options tunes one resolution.
type Options struct {
	// SkipRefresh serves the cached tree without touching the network.
	// Resolution fails with ArtifactMissingError when nothing is cached.
	SkipRefresh bool

	// PullInterval suppresses re-downloads of an Application source fetched
	// more recently than this. Zero always refreshes. Flux sources are
	// content-addressed by digest, so the interval does not apply to them.
	PullInterval time.Duration
}

// SourceNotFoundError means the referenced source object does not exist.
// The controller waits for a watch event instead of arming a retry timer.
type SourceNotFoundError struct {
	Kind      v1alpha1.SourceKind
	Name      string
	Namespace string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source %s %s/%s not found", e.Kind, e.Namespace, e.Name)
}

// IsSourceNotFound reports whether err carries a SourceNotFoundError.
func IsSourceNotFound(err error) bool {
	var e *SourceNotFoundError
	return errors.As(err, &e)
}

// ArtifactMissingError means the source exists but no usable content could be
// obtained right now: the GitRepository has not published an artifact yet, a
// download failed, or a clone could not complete. Transient; retried with
// backoff.
type ArtifactMissingError struct {
	Reason string
	Err    error
}

func (e *ArtifactMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("artifact unavailable: %s", e.Reason)
}

func (e *ArtifactMissingError) Unwrap() error { return e.Err }

// IsArtifactMissing reports whether err carries an ArtifactMissingError.
func IsArtifactMissing(err error) bool {
	var e *ArtifactMissingError
	return errors.As(err, &e)
}

// ArtifactCorruptError means the downloaded artifact failed digest
// verification. Permanent until the source publishes a new artifact.
type ArtifactCorruptError struct {
	Digest string
	Err    error
}

func (e *ArtifactCorruptError) Error() string {
	return fmt.Sprintf("corrupted artifact (digest %s): %v", e.Digest, e.Err)
}

func (e *ArtifactCorruptError) Unwrap() error { return e.Err }

// IsArtifactCorrupt reports whether err carries an ArtifactCorruptError.
func IsArtifactCorrupt(err error) bool {
	var e *ArtifactCorruptError
	return errors.As(err, &e)
}

// Resolver materializes source trees under CacheDir.
type Resolver struct {
	// Client reads source objects from the cluster.
	Client client.Client

	// CacheDir is the base directory for unpacked artifacts and clones.
	CacheDir string

	// GitBinary is the git executable used for Application sources.
	GitBinary string

	Log logr.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Resolve returns the local tree for the config's source reference. At most
// one resolution per source runs at a time; later callers block until the
// first finishes and then typically hit the cache.
func (r *Resolver) Resolve(ctx context.Context, smc *v1alpha1.SecretManagerConfig, opts Options) (Artifact, error) {
	ref := smc.Spec.SourceRef
	key := fmt.Sprintf("%s/%s/%s", ref.Kind, smc.SourceNamespace(), ref.Name)

	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	switch ref.Kind {
	case v1alpha1.SourceKindGitRepository:
		return r.resolveFlux(ctx, smc, opts)
	case v1alpha1.SourceKindApplication:
		return r.resolveApplication(ctx, smc, opts)
	default:
		// Validation rejects unknown kinds before any resolve.
		return Artifact{}, fmt.Errorf("unsupported source kind %q", ref.Kind)
	}
}

func (r *Resolver) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// writeRevisionMarker records the revision inside the resolved tree.
func writeRevisionMarker(dir, revision string) error {
	return os.WriteFile(filepath.Join(dir, revisionMarker), []byte(revision+"\n"), 0o600)
}

// readRevisionMarker returns the recorded revision, or "" when absent.
func readRevisionMarker(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, revisionMarker))
	if err != nil {
		return ""
	}
	for i, b := range data {
		if b == '\n' {
			return string(data[:i])
		}
	}
	return string(data)
}

// newestSubdir returns the most recently modified subdirectory of dir, or ""
// when dir has none.
func newestSubdir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}

// pruneSiblings removes every subdirectory of parent except keep. Stale
// revisions accumulate one directory per artifact otherwise.
func pruneSiblings(parent, keep string) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return
	}
	for _, entry := range entries {
		full := filepath.Join(parent, entry.Name())
		if full == keep || !entry.IsDir() {
			continue
		}
		_ = os.RemoveAll(full)
	}
}
