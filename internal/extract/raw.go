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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"sigs.k8s.io/yaml"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

const (
	secretsEnvFile  = "application.secrets.env"
	secretsYAMLFile = "application.secrets.yaml"
	propertiesFile  = "application.properties"
)

// keyRe limits which commented lines count as disable intent: the remainder
// after '#' must look like KEY=VALUE with a plausible key, so prose comments
// are not misread as disabled entries.
var keyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// extractRaw discovers per-service environment directories beneath root (or
// spec.BasePath when set) and parses their secret and property files. A
// directory layout of <service>/<environment>/<file> is expected; files in an
// environment directory at the root itself form the "default" service.
func (e *Extractor) extractRaw(ctx context.Context, root string, spec v1alpha1.SecretsSpec) (Content, error) {
	base := root
	if strings.TrimSpace(spec.BasePath) != "" {
		base = filepath.Join(root, filepath.FromSlash(spec.BasePath))
	}

	dirs, err := discoverServiceDirs(os.DirFS(base), spec.Environment)
	if err != nil {
		return Content{}, err
	}

	var content Content
	for service, dir := range dirs {
		svc, err := e.readServiceDir(ctx, base, service, dir)
		if err != nil {
			return Content{}, err
		}
		content.Services = append(content.Services, svc)
	}
	sortServices(content.Services)
	return content, nil
}

// discoverServiceDirs walks the tree once and maps service names to their
// environment directories. Hidden path segments (.git in argocd clones) are
// skipped.
func discoverServiceDirs(fsys fs.FS, environment string) (map[string]string, error) {
	patterns := []string{
		path.Join("**", environment, secretsEnvFile),
		path.Join("**", environment, secretsYAMLFile),
		path.Join("**", environment, propertiesFile),
	}

	dirs := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		for _, pattern := range patterns {
			matched, err := doublestar.Match(pattern, p)
			if err != nil {
				return fmt.Errorf("matching %s: %w", pattern, err)
			}
			if matched {
				envDir := path.Dir(p)
				dirs[serviceName(envDir)] = envDir
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering environment directories: %w", err)
	}
	return dirs, nil
}

// serviceName derives the service label from an environment directory path:
// everything above the environment segment, or "default" at the root.
func serviceName(envDir string) string {
	parent := path.Dir(envDir)
	if parent == "." || parent == "/" {
		return DefaultService
	}
	return parent
}

func (e *Extractor) readServiceDir(ctx context.Context, base, service, dir string) (ServiceContent, error) {
	svc := ServiceContent{
		Name:       service,
		Dir:        dir,
		Secrets:    make(map[string]Entry),
		Properties: make(map[string]Entry),
	}

	// YAML first so .env entries win on collision.
	if data, ok, err := e.readFile(ctx, base, path.Join(dir, secretsYAMLFile)); err != nil {
		return ServiceContent{}, err
	} else if ok {
		flat, err := parseFlatYAML(data)
		if err != nil {
			return ServiceContent{}, &MalformedFileError{Path: path.Join(dir, secretsYAMLFile), Err: err}
		}
		for k, v := range flat {
			svc.Secrets[k] = Entry{Value: v}
		}
	}

	if data, ok, err := e.readFile(ctx, base, path.Join(dir, secretsEnvFile)); err != nil {
		return ServiceContent{}, err
	} else if ok {
		for k, entry := range parseKeyValues(data) {
			svc.Secrets[k] = entry
		}
	}

	if data, ok, err := e.readFile(ctx, base, path.Join(dir, propertiesFile)); err != nil {
		return ServiceContent{}, err
	} else if ok {
		for k, entry := range parseKeyValues(data) {
			svc.Properties[k] = entry
		}
	}

	return svc, nil
}

// readFile loads one artifact file and runs it through the decrypter. The
// second return is false when the file does not exist.
func (e *Extractor) readFile(ctx context.Context, base, rel string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", rel, err)
	}

	plain, err := e.Decrypter.MaybeDecrypt(ctx, data, sops.FormatForPath(rel))
	if err != nil {
		return nil, false, fmt.Errorf("decrypting %s: %w", rel, err)
	}
	return plain, true, nil
}

// parseKeyValues parses KEY=VALUE lines. Blank lines are skipped. A
// commented line whose remainder still parses as KEY=VALUE records the entry
// as disabled; other comments are ignored. The last occurrence of a key wins.
func parseKeyValues(data []byte) map[string]Entry {
	entries := make(map[string]Entry)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		disabled := false
		if strings.HasPrefix(line, "#") {
			line = strings.TrimSpace(strings.TrimLeft(line, "#"))
			disabled = true
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if !keyRe.MatchString(key) {
			continue
		}
		entries[key] = Entry{Value: unquote(strings.TrimSpace(value)), Disabled: disabled}
	}
	return entries
}

// unquote strips one pair of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// parseFlatYAML parses a flat YAML map of scalars. Nested structures are
// rejected.
func parseFlatYAML(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	flat := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case nil:
			flat[k] = ""
		case bool, float64:
			flat[k] = fmt.Sprintf("%v", val)
		default:
			return nil, fmt.Errorf("key %q holds a nested %T, expected a scalar", k, v)
		}
	}
	return flat, nil
}
