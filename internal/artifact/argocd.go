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
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	gogit "github.com/go-git/go-git/v5"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

// ApplicationGVK identifies the Argo CD Application resource. The controller
// reads it as unstructured content so no Argo module dependency is needed.
var ApplicationGVK = schema.GroupVersionKind{
	Group:   "argoproj.io",
	Version: "v1alpha1",
	Kind:    "Application",
}

// applicationSource is the subset of an Application spec the resolver needs.
type applicationSource struct {
	RepoURL        string
	TargetRevision string
	Path           string
}

// argoCacheDir returns the per-application parent directory; individual
// clones live in content-hashed subdirectories beneath it.
func (r *Resolver) argoCacheDir(namespace, name string) string {
	return filepath.Join(r.CacheDir, "argocd-repo", namespace, name)
}

// resolveApplication clones (or refreshes) the repository declared by the
// referenced Application and returns its spec.source.path subtree.
func (r *Resolver) resolveApplication(ctx context.Context, smc *v1alpha1.SecretManagerConfig, opts Options) (Artifact, error) {
	ref := smc.Spec.SourceRef
	namespace := smc.SourceNamespace()
	base := r.argoCacheDir(namespace, ref.Name)

	if opts.SkipRefresh {
		art, err := cachedTree(base)
		if err != nil {
			return Artifact{}, err
		}
		return subtree(art, "")
	}

	src, err := r.applicationSource(ctx, ref.Name, namespace)
	if err != nil {
		return Artifact{}, err
	}

	cloneDir := filepath.Join(base, contentHash(src))
	if fresh(cloneDir, opts.PullInterval) {
		return subtree(Artifact{LocalPath: cloneDir, Revision: readRevisionMarker(cloneDir)}, src.Path)
	}

	if err := r.syncClone(ctx, cloneDir, src); err != nil {
		return Artifact{}, err
	}

	revision, err := headRevision(cloneDir)
	if err != nil {
		return Artifact{}, &ArtifactMissingError{Reason: "resolving cloned revision", Err: err}
	}
	if err := writeRevisionMarker(cloneDir, revision); err != nil {
		return Artifact{}, fmt.Errorf("recording clone revision: %w", err)
	}
	pruneSiblings(base, cloneDir)

	return subtree(Artifact{LocalPath: cloneDir, Revision: revision}, src.Path)
}

// applicationSource reads spec.source out of the Application object.
func (r *Resolver) applicationSource(ctx context.Context, name, namespace string) (applicationSource, error) {
	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(ApplicationGVK)
	err := r.Client.Get(ctx, types.NamespacedName{Name: name, Namespace: namespace}, app)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return applicationSource{}, &SourceNotFoundError{
				Kind: v1alpha1.SourceKindApplication, Name: name, Namespace: namespace,
			}
		}
		return applicationSource{}, fmt.Errorf("fetching Application %s/%s: %w", namespace, name, err)
	}
	return sourceFromApplication(app)
}

func sourceFromApplication(app *unstructured.Unstructured) (applicationSource, error) {
	repoURL, _, err := unstructured.NestedString(app.Object, "spec", "source", "repoURL")
	if err != nil || repoURL == "" {
		return applicationSource{}, &ArtifactMissingError{Reason: "Application has no spec.source.repoURL"}
	}
	rev, _, _ := unstructured.NestedString(app.Object, "spec", "source", "targetRevision")
	if rev == "" {
		rev = "HEAD"
	}
	path, _, _ := unstructured.NestedString(app.Object, "spec", "source", "path")
	return applicationSource{RepoURL: repoURL, TargetRevision: rev, Path: path}, nil
}

// contentHash names the clone directory after what is being checked out, so
// a repo/revision/path change lands in a fresh directory.
func contentHash(src applicationSource) string {
	sum := xxhash.Sum64String(src.RepoURL + "|" + src.TargetRevision + "|" + src.Path)
	return fmt.Sprintf("%016x", sum)
}

// fresh reports whether the clone was refreshed within interval.
func fresh(cloneDir string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(cloneDir, revisionMarker))
	return err == nil && time.Since(info.ModTime()) < interval
}

// syncClone brings cloneDir to the requested revision, cloning first when
// the directory has no repository yet.
func (r *Resolver) syncClone(ctx context.Context, cloneDir string, src applicationSource) error {
	if _, err := os.Stat(filepath.Join(cloneDir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(cloneDir), 0o750); err != nil {
			return fmt.Errorf("creating clone parent dir: %w", err)
		}
		r.Log.Info("cloning application source", "repo", redactURL(src.RepoURL), "revision", src.TargetRevision)
		if out, err := r.git(ctx, "", "clone", "--no-checkout", src.RepoURL, cloneDir); err != nil {
			_ = os.RemoveAll(cloneDir)
			return &ArtifactMissingError{Reason: "git clone failed: " + redact(out, src.RepoURL), Err: err}
		}
	} else {
		r.Log.V(1).Info("refreshing application source", "repo", redactURL(src.RepoURL), "revision", src.TargetRevision)
		if out, err := r.git(ctx, cloneDir, "fetch", "--force", "--tags", "origin"); err != nil {
			return &ArtifactMissingError{Reason: "git fetch failed: " + redact(out, src.RepoURL), Err: err}
		}
	}

	// targetRevision may be a branch, tag or commit; try the remote-tracking
	// ref first so branch names resolve to their fetched tip.
	if out, err := r.git(ctx, cloneDir, "checkout", "--force", "origin/"+src.TargetRevision); err != nil {
		if out2, err2 := r.git(ctx, cloneDir, "checkout", "--force", src.TargetRevision); err2 != nil {
			return &ArtifactMissingError{
				Reason: fmt.Sprintf("git checkout %s failed: %s", src.TargetRevision, redact(out+out2, src.RepoURL)),
				Err:    err2,
			}
		}
	}
	return nil
}

// git runs one git command, never prompting for credentials. Combined output
// is returned for error reporting.
func (r *Resolver) git(ctx context.Context, dir string, args ...string) (string, error) {
	binary := r.GitBinary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// headRevision reports the checked-out commit of cloneDir.
func headRevision(cloneDir string) (string, error) {
	repo, err := gogit.PlainOpen(cloneDir)
	if err != nil {
		return "", fmt.Errorf("opening clone: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// subtree narrows the artifact to the Application's configured path.
func subtree(art Artifact, path string) (Artifact, error) {
	if path == "" || path == "." {
		return art, nil
	}
	full := filepath.Join(art.LocalPath, filepath.Clean(path))
	if !strings.HasPrefix(full, filepath.Clean(art.LocalPath)+string(os.PathSeparator)) {
		return Artifact{}, fmt.Errorf("application path %q escapes the clone", path)
	}
	if info, err := os.Stat(full); err != nil || !info.IsDir() {
		return Artifact{}, &ArtifactMissingError{Reason: fmt.Sprintf("application path %q not present at revision %s", path, art.Revision)}
	}
	return Artifact{LocalPath: full, Revision: art.Revision}, nil
}

// redact strips credentials embedded in the repo URL from subprocess output
// before it reaches logs or status.
func redact(out, repoURL string) string {
	out = strings.TrimSpace(out)
	if u, err := url.Parse(repoURL); err == nil && u.User != nil {
		out = strings.ReplaceAll(out, u.User.String(), "***")
	}
	return out
}

func redactURL(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil || u.User == nil {
		return repoURL
	}
	u.User = url.User("***")
	return u.String()
}
