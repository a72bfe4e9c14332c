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

// gen-gpg-key generates a throwaway GPG key pair for e2e runs and writes the
// armored private key plus a Kubernetes Secret manifest in the layout the
// controller's SOPS pipeline expects.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

const (
	keyFileMode    = 0o600
	secretFileMode = 0o644
	dirMode        = 0o750
)

func main() {
	var keyFile string
	var secretFile string
	var namespace string
	var secretName string

	flag.StringVar(&keyFile, "key-file", "", "path to write the armored private key")
	flag.StringVar(&secretFile, "secret-file", "", "path to write Kubernetes Secret manifest")
	flag.StringVar(&namespace, "namespace", "", "Secret namespace")
	flag.StringVar(&secretName, "secret-name", "", "Secret name")
	flag.Parse()

	if keyFile == "" || secretFile == "" || namespace == "" || secretName == "" {
		exitf("all flags are required: --key-file --secret-file --namespace --secret-name")
	}

	entity, err := openpgp.NewEntity("smc e2e", "throwaway test key", "e2e@configbutler.ai", nil)
	if err != nil {
		exitf("generate gpg entity: %v", err)
	}

	armored, err := armorPrivateKey(entity)
	if err != nil {
		exitf("armor private key: %v", err)
	}

	if err := writeFile(keyFile, []byte(armored), keyFileMode); err != nil {
		exitf("write key file: %v", err)
	}

	secretContent := fmt.Sprintf(`apiVersion: v1
kind: Secret
metadata:
  name: %s
  namespace: %s
type: Opaque
stringData:
  sops.asc: |
%s`, secretName, namespace, indent(armored, 4))
	if err := writeFile(secretFile, []byte(secretContent), secretFileMode); err != nil {
		exitf("write secret file: %v", err)
	}
}

func armorPrivateKey(entity *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString(pad)
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func writeFile(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if parent != "" && parent != "." {
		if err := os.MkdirAll(parent, dirMode); err != nil {
			return err
		}
	}
	return os.WriteFile(path, content, mode)
}

func exitf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
