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

// Package extract turns a resolved artifact tree into the desired secret and
// property state, grouped by service. It supports a raw-file layout
// (application.secrets.env / application.secrets.yaml /
// application.properties under per-service environment directories) and a
// kustomize overlay rendered through the external kustomize binary.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

// DefaultService groups keys found at the artifact root, outside any service
// directory.
const DefaultService = "default"

// Entry is one extracted key. Disabled entries come from commented-out lines
// and carry the last value seen on the line.
type Entry struct {
	Value    string
	Disabled bool
}

// ServiceContent is the desired state for one service directory.
type ServiceContent struct {
	// Name identifies the service in status messages. For the raw layout it
	// is the directory path above the environment directory, for kustomize it
	// is the overlay directory name.
	Name string

	// Dir is the source directory relative to the artifact root.
	Dir string

	Secrets    map[string]Entry
	Properties map[string]Entry
}

// Content is everything extracted from one artifact revision. Services are
// sorted by name so reconciliations process them in a stable order.
type Content struct {
	Services []ServiceContent
}

// ServiceNames returns the sorted service names.
func (c Content) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		names = append(names, svc.Name)
	}
	return names
}

// Empty reports whether no service contributed any key.
func (c Content) Empty() bool {
	for _, svc := range c.Services {
		if len(svc.Secrets) > 0 || len(svc.Properties) > 0 {
			return false
		}
	}
	return true
}

// Decrypter turns possibly sops-encrypted bytes into plaintext. Unencrypted
// input passes through unchanged.
type Decrypter interface {
	MaybeDecrypt(ctx context.Context, content []byte, format sops.Format) ([]byte, error)
}

// BuildError reports a failed kustomize build. The content will not build
// until the Git source changes, so the caller treats it as permanent.
type BuildError struct {
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("kustomize build failed: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("kustomize build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// AsBuildError unwraps err into a *BuildError when one is in the chain.
func AsBuildError(err error) (*BuildError, bool) {
	var be *BuildError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// MalformedFileError reports a file whose content could not be parsed.
// Like BuildError it is permanent until the Git source changes.
type MalformedFileError struct {
	Path string
	Err  error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("malformed file %s: %v", e.Path, e.Err)
}

func (e *MalformedFileError) Unwrap() error { return e.Err }

// AsMalformedFileError unwraps err into a *MalformedFileError when one is in
// the chain.
func AsMalformedFileError(err error) (*MalformedFileError, bool) {
	var me *MalformedFileError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// Extractor reads desired state out of an artifact tree. The zero value is
// not usable; populate KustomizeBinary and Decrypter.
type Extractor struct {
	// KustomizeBinary is the path of the kustomize executable.
	KustomizeBinary string

	// Decrypter handles sops-encrypted content before parsing.
	Decrypter Decrypter
}

// Extract dispatches on spec.KustomizePath: raw-file discovery when unset,
// a kustomize build otherwise.
func (e *Extractor) Extract(ctx context.Context, root string, spec v1alpha1.SecretsSpec) (Content, error) {
	if strings.TrimSpace(spec.KustomizePath) != "" {
		return e.extractKustomize(ctx, root, spec)
	}
	return e.extractRaw(ctx, root, spec)
}

func sortServices(services []ServiceContent) {
	sort.Slice(services, func(i, j int) bool {
		return services[i].Name < services[j].Name
	})
}
