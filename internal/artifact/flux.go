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

package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fluxcd/pkg/http/fetch"
	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

const (
	// fetchRetries bounds transient retry attempts inside one download.
	fetchRetries = 3

	// unlimitedSize disables the fetcher's download and untar size caps; the
	// source controller already bounds artifact size on its side.
	unlimitedSize = -1
)

// fluxCacheDir is the per-source directory holding unpacked artifact trees,
// one subdirectory per digest.
func (r *Resolver) fluxCacheDir(namespace, name string) string {
	return filepath.Join(r.CacheDir, fmt.Sprintf("flux-source-%s-%s", namespace, name))
}

// resolveFlux downloads and unpacks the artifact advertised by the referenced
// GitRepository. Trees are content-addressed by artifact digest: a digest
// already on disk short-circuits the download, and stale digests are pruned
// after a successful fetch.
func (r *Resolver) resolveFlux(ctx context.Context, smc *v1alpha1.SecretManagerConfig, opts Options) (Artifact, error) {
	ref := smc.Spec.SourceRef
	namespace := smc.SourceNamespace()
	base := r.fluxCacheDir(namespace, ref.Name)

	if opts.SkipRefresh {
		return cachedTree(base)
	}

	var repo sourcev1.GitRepository
	err := r.Client.Get(ctx, types.NamespacedName{Name: ref.Name, Namespace: namespace}, &repo)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return Artifact{}, &SourceNotFoundError{Kind: ref.Kind, Name: ref.Name, Namespace: namespace}
		}
		return Artifact{}, fmt.Errorf("fetching GitRepository %s/%s: %w", namespace, ref.Name, err)
	}

	art := repo.GetArtifact()
	if art == nil {
		return Artifact{}, &ArtifactMissingError{Reason: "GitRepository has not published an artifact yet"}
	}

	dir := filepath.Join(base, digestDirName(art.Digest))
	if _, err := os.Stat(filepath.Join(dir, revisionMarker)); err == nil {
		return Artifact{LocalPath: dir, Revision: readRevisionMarker(dir)}, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Artifact{}, fmt.Errorf("creating artifact dir: %w", err)
	}

	r.Log.Info("downloading artifact", "url", art.URL, "revision", art.Revision)
	fetcher := fetch.NewArchiveFetcher(fetchRetries, unlimitedSize, unlimitedSize, "")
	if err := fetcher.Fetch(art.URL, art.Digest, dir); err != nil {
		_ = os.RemoveAll(dir)
		return Artifact{}, classifyFetchError(art.Digest, err)
	}

	if err := writeRevisionMarker(dir, art.Revision); err != nil {
		return Artifact{}, fmt.Errorf("recording artifact revision: %w", err)
	}
	pruneSiblings(base, dir)

	return Artifact{LocalPath: dir, Revision: art.Revision}, nil
}

// cachedTree serves the newest unpacked digest without touching the network.
func cachedTree(base string) (Artifact, error) {
	dir := newestSubdir(base)
	if dir == "" {
		return Artifact{}, &ArtifactMissingError{Reason: "git pulls suspended and no cached artifact exists"}
	}
	return Artifact{LocalPath: dir, Revision: readRevisionMarker(dir)}, nil
}

// digestDirName flattens an artifact digest ("sha256:abc...") into a
// filesystem-safe directory name.
func digestDirName(digest string) string {
	if digest == "" {
		return "unverified"
	}
	return strings.ReplaceAll(digest, ":", "-")
}

// classifyFetchError separates integrity failures, which stay broken until
// the source publishes a new artifact, from retryable download failures.
func classifyFetchError(digest string, err error) error {
	if errors.Is(err, fetch.ErrFileNotFound) {
		return &ArtifactMissingError{Reason: "artifact url not found", Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "verif") || strings.Contains(msg, "digest") || strings.Contains(msg, "checksum") {
		return &ArtifactCorruptError{Digest: digest, Err: err}
	}
	return &ArtifactMissingError{Reason: "artifact download failed", Err: err}
}
