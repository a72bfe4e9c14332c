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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

// writeTree materializes a fixture tree of slash-relative paths.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

// passthroughExtractor never spawns anything: unencrypted fixtures prove it
// by pointing at a binary that does not exist.
func passthroughExtractor() *Extractor {
	return &Extractor{
		KustomizeBinary: "/nonexistent/kustomize",
		Decrypter:       sops.NewDecryptor("/nonexistent/sops", nil),
	}
}

func TestExtractRawSingleService(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dev/application.secrets.env": "DB_PASSWORD=p1\n\n# OLD_KEY=stale\n# free-form note without assignment\nAPI_TOKEN=\"quoted\"\n",
		"dev/application.properties":  "spring.datasource.url=jdbc:postgres://db/main\n# feature.flag=off\n",
	})

	content, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.NoError(t, err)
	require.Len(t, content.Services, 1)

	svc := content.Services[0]
	assert.Equal(t, "default", svc.Name)
	assert.Equal(t, "dev", svc.Dir)

	assert.Equal(t, Entry{Value: "p1"}, svc.Secrets["DB_PASSWORD"])
	assert.Equal(t, Entry{Value: "stale", Disabled: true}, svc.Secrets["OLD_KEY"])
	assert.Equal(t, Entry{Value: "quoted"}, svc.Secrets["API_TOKEN"])
	assert.NotContains(t, svc.Secrets, "free-form")

	assert.Equal(t, Entry{Value: "jdbc:postgres://db/main"}, svc.Properties["spring.datasource.url"])
	assert.Equal(t, Entry{Value: "off", Disabled: true}, svc.Properties["feature.flag"])
}

func TestExtractRawMultiService(t *testing.T) {
	root := writeTree(t, map[string]string{
		"payments/dev/application.secrets.env":   "STRIPE_KEY=sk_test\n",
		"billing/dev/application.secrets.yaml":   "INVOICE_TOKEN: tok-1\nRETRIES: 3\n",
		"billing/staging/application.properties": "ignored=for-this-environment\n",
	})

	content, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.NoError(t, err)

	require.Equal(t, []string{"billing", "payments"}, content.ServiceNames())

	billing := content.Services[0]
	assert.Equal(t, Entry{Value: "tok-1"}, billing.Secrets["INVOICE_TOKEN"])
	assert.Equal(t, Entry{Value: "3"}, billing.Secrets["RETRIES"])
	assert.Empty(t, billing.Properties)

	payments := content.Services[1]
	assert.Equal(t, Entry{Value: "sk_test"}, payments.Secrets["STRIPE_KEY"])
}

func TestExtractRawEnvWinsOverYAML(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dev/application.secrets.yaml": "SHARED: from-yaml\nYAML_ONLY: y\n",
		"dev/application.secrets.env":  "SHARED=from-env\n",
	})

	content, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.NoError(t, err)
	require.Len(t, content.Services, 1)

	svc := content.Services[0]
	assert.Equal(t, Entry{Value: "from-env"}, svc.Secrets["SHARED"])
	assert.Equal(t, Entry{Value: "y"}, svc.Secrets["YAML_ONLY"])
}

func TestExtractRawBasePath(t *testing.T) {
	root := writeTree(t, map[string]string{
		"deploy/payments/dev/application.secrets.env": "KEY=v\n",
		"payments/dev/application.secrets.env":        "OUTSIDE=base-path\n",
	})

	content, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{
		Environment: "dev",
		BasePath:    "deploy",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"payments"}, content.ServiceNames())
	assert.Equal(t, Entry{Value: "v"}, content.Services[0].Secrets["KEY"])
	assert.NotContains(t, content.Services[0].Secrets, "OUTSIDE")
}

func TestExtractRawSkipsHiddenDirectories(t *testing.T) {
	root := writeTree(t, map[string]string{
		".git/dev/application.secrets.env":     "LEAKED=never\n",
		"payments/dev/application.secrets.env": "KEY=v\n",
	})

	content, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, []string{"payments"}, content.ServiceNames())
}

func TestExtractRawMalformedYAML(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dev/application.secrets.yaml": "nested:\n  too: deep\n",
	})

	_, err := passthroughExtractor().Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.Error(t, err)

	me, ok := AsMalformedFileError(err)
	require.True(t, ok)
	assert.Equal(t, "dev/application.secrets.yaml", me.Path)
}

// recordingDecrypter swaps a known ciphertext for plaintext and records which
// files actually reached it.
type recordingDecrypter struct {
	calls []sops.Format
}

func (d *recordingDecrypter) MaybeDecrypt(_ context.Context, content []byte, format sops.Format) ([]byte, error) {
	d.calls = append(d.calls, format)
	if sops.IsEncrypted(content) {
		return bytes.ReplaceAll(content, []byte("ENC[cipher]"), []byte("plain")), nil
	}
	return content, nil
}

func TestExtractRawDecryptsBeforeParsing(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dev/application.secrets.env": "DB_PASSWORD=ENC[cipher]\n",
	})

	dec := &recordingDecrypter{}
	e := &Extractor{KustomizeBinary: "/nonexistent/kustomize", Decrypter: dec}

	content, err := e.Extract(context.Background(), root, v1alpha1.SecretsSpec{Environment: "dev"})
	require.NoError(t, err)
	require.Len(t, content.Services, 1)

	assert.Equal(t, Entry{Value: "plain"}, content.Services[0].Secrets["DB_PASSWORD"])
	assert.Equal(t, []sops.Format{sops.FormatDotenv}, dec.calls)
}

func TestParseKeyValues(t *testing.T) {
	entries := parseKeyValues([]byte(
		"PLAIN=value\n" +
			"SPACED = padded \n" +
			"EQUALS=a=b=c\n" +
			"REPEATED=first\n" +
			"REPEATED=second\n" +
			"'NOT A KEY'=skipped\n" +
			"#DISABLED=gone\n",
	))

	assert.Equal(t, Entry{Value: "value"}, entries["PLAIN"])
	assert.Equal(t, Entry{Value: "padded"}, entries["SPACED"])
	assert.Equal(t, Entry{Value: "a=b=c"}, entries["EQUALS"])
	assert.Equal(t, Entry{Value: "second"}, entries["REPEATED"])
	assert.Equal(t, Entry{Value: "gone", Disabled: true}, entries["DISABLED"])
	assert.Len(t, entries, 5)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "default", serviceName("dev"))
	assert.Equal(t, "payments", serviceName("payments/dev"))
	assert.Equal(t, "team/payments", serviceName("team/payments/dev"))
}
