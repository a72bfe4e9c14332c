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

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/kustomize/kyaml/kio"
	"sigs.k8s.io/yaml"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

// extractKustomize renders spec.KustomizePath with the external kustomize
// binary and harvests Secret and ConfigMap documents from the output stream.
// Everything else in the stream is skipped. The rendered overlay forms a
// single service named after the overlay directory.
func (e *Extractor) extractKustomize(ctx context.Context, root string, spec v1alpha1.SecretsSpec) (Content, error) {
	base := root
	if strings.TrimSpace(spec.BasePath) != "" {
		base = filepath.Join(root, filepath.FromSlash(spec.BasePath))
	}
	overlay := path.Clean(spec.KustomizePath)

	cmd := exec.CommandContext(ctx, e.KustomizeBinary, "build", filepath.FromSlash(overlay))
	cmd.Dir = base

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Content{}, &BuildError{Output: strings.TrimSpace(stderr.String()), Err: err}
	}

	// The rendered stream may itself carry a sops envelope; unencrypted
	// output passes through unchanged.
	plain, err := e.Decrypter.MaybeDecrypt(ctx, stdout.Bytes(), sops.FormatYAML)
	if err != nil {
		return Content{}, fmt.Errorf("decrypting kustomize output for %s: %w", overlay, err)
	}

	svc, err := harvestManifests(plain, overlay)
	if err != nil {
		return Content{}, err
	}
	return Content{Services: []ServiceContent{svc}}, nil
}

// harvestManifests splits the rendered YAML stream and folds Secret data and
// ConfigMap data into a single service's maps.
func harvestManifests(stream []byte, overlay string) (ServiceContent, error) {
	svc := ServiceContent{
		Name:       overlayServiceName(overlay),
		Dir:        overlay,
		Secrets:    make(map[string]Entry),
		Properties: make(map[string]Entry),
	}

	rdr := &kio.ByteReader{Reader: bytes.NewReader(stream)}
	nodes, err := rdr.Read()
	if err != nil {
		return ServiceContent{}, &MalformedFileError{Path: overlay, Err: err}
	}

	for i, node := range nodes {
		kind := node.GetKind()
		if kind != "Secret" && kind != "ConfigMap" {
			continue
		}
		doc, err := node.String()
		if err != nil {
			return ServiceContent{}, &MalformedFileError{Path: fmt.Sprintf("%s (document %d)", overlay, i+1), Err: err}
		}

		switch kind {
		case "Secret":
			var sec corev1.Secret
			if err := yaml.Unmarshal([]byte(doc), &sec); err != nil {
				return ServiceContent{}, &MalformedFileError{Path: fmt.Sprintf("%s (document %d)", overlay, i+1), Err: err}
			}
			for k, v := range sec.Data {
				svc.Secrets[k] = Entry{Value: string(v)}
			}
			// stringData wins over data, matching apiserver semantics.
			for k, v := range sec.StringData {
				svc.Secrets[k] = Entry{Value: v}
			}
		case "ConfigMap":
			var cm corev1.ConfigMap
			if err := yaml.Unmarshal([]byte(doc), &cm); err != nil {
				return ServiceContent{}, &MalformedFileError{Path: fmt.Sprintf("%s (document %d)", overlay, i+1), Err: err}
			}
			for k, v := range cm.Data {
				svc.Properties[k] = Entry{Value: v}
			}
		}
	}
	return svc, nil
}

func overlayServiceName(overlay string) string {
	name := path.Base(overlay)
	if name == "." || name == "/" || name == "" {
		return DefaultService
	}
	return name
}
