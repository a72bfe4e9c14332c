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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeSops drops an executable shell script standing in for the sops
// binary and returns its path.
func writeFakeSops(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sops")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestIsEncrypted(t *testing.T) {
	assert.True(t, IsEncrypted([]byte("DB_PASSWORD=ENC[AES256_GCM,data:abc,type:str]")))
	assert.True(t, IsEncrypted([]byte("apiVersion: v1\nsops:\n  version: 3.8.1\n")))
	assert.False(t, IsEncrypted([]byte("DB_PASSWORD=p1\n")))
	assert.False(t, IsEncrypted([]byte("")))
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("app/application.secrets.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("values.yml"))
	assert.Equal(t, FormatDotenv, FormatForPath("dev/application.secrets.env"))
	assert.Equal(t, FormatJSON, FormatForPath("cfg.json"))
	assert.Equal(t, FormatBinary, FormatForPath("application.properties"))
}

func TestMaybeDecryptPassthroughSkipsSubprocess(t *testing.T) {
	// A nonexistent binary proves plaintext never spawns sops.
	d := NewDecryptor("/nonexistent/sops", nil)

	in := []byte("DB_PASSWORD=p1\n")
	out, err := d.MaybeDecrypt(context.Background(), in, FormatDotenv)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMaybeDecryptStreamsPlaintext(t *testing.T) {
	// The fake reads all of stdin, logs noise on stderr and emits plaintext
	// on stdout; only stdout may reach the caller.
	bin := writeFakeSops(t, `cat >/dev/null
echo "decrypt chatter" >&2
printf 'DB_PASSWORD=p1\n'`)

	d := NewDecryptor(bin, nil)
	out, err := d.MaybeDecrypt(context.Background(), []byte("sops:\n  version: 3.8.1\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "DB_PASSWORD=p1\n", string(out))
}

func TestMaybeDecryptClassifiesExitCode(t *testing.T) {
	bin := writeFakeSops(t, `cat >/dev/null
echo "gpg: decryption failed" >&2
exit 128`)

	d := NewDecryptor(bin, nil)
	_, err := d.MaybeDecrypt(context.Background(), []byte("ENC[data]"), FormatDotenv)
	require.Error(t, err)

	de, ok := AsDecryptError(err)
	require.True(t, ok)
	assert.Equal(t, ClassKeyNotFound, de.Class)
	assert.True(t, de.Class.Permanent())
}

func TestMaybeDecryptClassifiesStderrWhenCodeUnknown(t *testing.T) {
	bin := writeFakeSops(t, `cat >/dev/null
echo "connection refused: vault.internal" >&2
exit 1`)

	d := NewDecryptor(bin, nil)
	_, err := d.MaybeDecrypt(context.Background(), []byte("ENC[data]"), FormatDotenv)
	require.Error(t, err)

	de, ok := AsDecryptError(err)
	require.True(t, ok)
	assert.Equal(t, ClassProviderUnavailable, de.Class)
	assert.False(t, de.Class.Permanent())
}

func TestMaybeDecryptMissingBinary(t *testing.T) {
	d := NewDecryptor("/nonexistent/sops", nil)

	_, err := d.MaybeDecrypt(context.Background(), []byte("ENC[data]"), FormatDotenv)
	require.Error(t, err)

	de, ok := AsDecryptError(err)
	require.True(t, ok)
	assert.Equal(t, ClassUnknown, de.Class)
}

func generateArmoredKey(t *testing.T) []byte {
	t.Helper()
	entity, err := openpgp.NewEntity("smc test", "", "smc@example.com", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestValidateArmoredKey(t *testing.T) {
	key := generateArmoredKey(t)

	fpr, err := ValidateArmoredKey(key)
	require.NoError(t, err)
	assert.NotEmpty(t, fpr)
}

func TestValidateArmoredKeyRejectsGarbage(t *testing.T) {
	_, err := ValidateArmoredKey([]byte("definitely not a key"))
	require.Error(t, err)

	de, ok := AsDecryptError(err)
	require.True(t, ok)
	assert.Equal(t, ClassInvalidKeyFormat, de.Class)
}

func TestBadKeyFailsBeforeSpawningAnything(t *testing.T) {
	// Both binaries point nowhere; the armored-key check must reject first.
	d := NewDecryptorWithEnv("/nonexistent/sops", "/nonexistent/gpg", []byte("garbage"), nil)

	_, err := d.MaybeDecrypt(context.Background(), []byte("ENC[data]"), FormatDotenv)
	require.Error(t, err)

	de, ok := AsDecryptError(err)
	require.True(t, ok)
	assert.Equal(t, ClassInvalidKeyFormat, de.Class)
}
