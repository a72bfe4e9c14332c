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

// Package sops streams encrypted artifact files through the external sops
// binary. Plaintext only ever transits pipes; nothing decrypted touches disk.
package sops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Format is the sops --input-type / --output-type value for a file.
type Format string

const (
	FormatYAML   Format = "yaml"
	FormatJSON   Format = "json"
	FormatDotenv Format = "dotenv"
	FormatBinary Format = "binary"
)

// FormatForPath picks the sops format from a file extension.
func FormatForPath(path string) Format {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".env":
		return FormatDotenv
	default:
		return FormatBinary
	}
}

// DecryptError carries the failure classification alongside the cause.
type DecryptError struct {
	Class FailureClass
	Err   error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("sops decryption failed (%s): %v", e.Class, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// AsDecryptError unwraps err into a *DecryptError if one is in the chain.
func AsDecryptError(err error) (*DecryptError, bool) {
	var de *DecryptError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsEncrypted reports whether content carries a sops envelope.
func IsEncrypted(content []byte) bool {
	return bytes.Contains(content, []byte("sops:")) || bytes.Contains(content, []byte("ENC["))
}

// Decryptor shells out to sops for decryption. A Decryptor is built per
// reconciliation from the key snapshot; it is not shared.
type Decryptor struct {
	binaryPath string
	gpgBinary  string
	key        []byte
	env        map[string]string
}

// NewDecryptor creates a Decryptor using binaryPath and, when key is
// non-empty, a GPG private key imported into a per-invocation keyring.
func NewDecryptor(binaryPath string, key []byte) *Decryptor {
	return NewDecryptorWithEnv(binaryPath, "gpg", key, nil)
}

// NewDecryptorWithEnv additionally overrides the gpg binary and injects extra
// environment variables into the child process.
func NewDecryptorWithEnv(binaryPath, gpgBinary string, key []byte, env map[string]string) *Decryptor {
	copiedEnv := make(map[string]string, len(env))
	for k, v := range env {
		copiedEnv[k] = v
	}
	if gpgBinary == "" {
		gpgBinary = "gpg"
	}
	return &Decryptor{
		binaryPath: binaryPath,
		gpgBinary:  gpgBinary,
		key:        slices.Clone(key),
		env:        copiedEnv,
	}
}

// MaybeDecrypt returns content unchanged when it carries no sops envelope.
// Otherwise ciphertext is streamed to sops over stdin and plaintext collected
// from stdout. Failures come back as *DecryptError.
func (d *Decryptor) MaybeDecrypt(ctx context.Context, content []byte, format Format) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	extra := make(map[string]string, len(d.env)+1)
	for k, v := range d.env {
		extra[k] = v
	}
	if len(d.key) > 0 {
		home, err := d.prepareKeyring(ctx)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(home)
		extra["GNUPGHOME"] = home
	}

	args := []string{
		"--decrypt",
		"--input-type", string(format),
		"--output-type", string(format),
		"/dev/stdin",
	}

	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	cmd.Env = buildCommandEnvironment(extra)
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &DecryptError{
			Class: Classify(code, stderr.String()),
			Err:   fmt.Errorf("sops exited with code %d: %s", code, strings.TrimSpace(stderr.String())),
		}
	}

	return stdout.Bytes(), nil
}

// ValidateArmoredKey parses an armored GPG private key and returns its
// primary fingerprint. Used before any import so malformed material is
// rejected without spawning gpg.
func ValidateArmoredKey(key []byte) (string, error) {
	ring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(key))
	if err != nil {
		return "", &DecryptError{Class: ClassInvalidKeyFormat, Err: fmt.Errorf("parsing armored key: %w", err)}
	}
	if len(ring) == 0 || ring[0].PrivateKey == nil {
		return "", &DecryptError{Class: ClassInvalidKeyFormat, Err: errors.New("armored input holds no private key")}
	}
	return fmt.Sprintf("%X", ring[0].PrimaryKey.Fingerprint), nil
}

// prepareKeyring creates a throwaway GNUPGHOME, imports the private key and
// sets ultimate ownertrust on it. The caller removes the directory.
func (d *Decryptor) prepareKeyring(ctx context.Context) (string, error) {
	fingerprint, err := ValidateArmoredKey(d.key)
	if err != nil {
		return "", err
	}

	home, err := os.MkdirTemp("", "smc-gnupg-")
	if err != nil {
		return "", fmt.Errorf("creating gnupg home: %w", err)
	}
	// gpg refuses group/world accessible homedirs.
	if err := os.Chmod(home, 0o700); err != nil {
		os.RemoveAll(home)
		return "", fmt.Errorf("restricting gnupg home: %w", err)
	}

	env := map[string]string{"GNUPGHOME": home}

	importCmd := exec.CommandContext(ctx, d.gpgBinary, "--batch", "--quiet", "--import")
	importCmd.Env = buildCommandEnvironment(env)
	importCmd.Stdin = bytes.NewReader(d.key)
	if out, err := importCmd.CombinedOutput(); err != nil {
		os.RemoveAll(home)
		return "", &DecryptError{
			Class: Classify(-1, string(out)),
			Err:   fmt.Errorf("gpg import failed: %w: %s", err, strings.TrimSpace(string(out))),
		}
	}

	trustCmd := exec.CommandContext(ctx, d.gpgBinary, "--batch", "--import-ownertrust")
	trustCmd.Env = buildCommandEnvironment(env)
	trustCmd.Stdin = strings.NewReader(fingerprint + ":6:\n")
	if out, err := trustCmd.CombinedOutput(); err != nil {
		os.RemoveAll(home)
		return "", &DecryptError{
			Class: ClassUnknown,
			Err:   fmt.Errorf("gpg ownertrust failed: %w: %s", err, strings.TrimSpace(string(out))),
		}
	}

	return home, nil
}

func buildCommandEnvironment(extra map[string]string) []string {
	environment := slices.Clone(os.Environ())
	if len(extra) == 0 {
		return environment
	}

	for key, value := range extra {
		environment = append(environment, fmt.Sprintf("%s=%s", key, value))
	}

	return environment
}
