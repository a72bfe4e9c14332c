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

import "strings"

// FailureClass partitions decryption failures. The first five classes are
// permanent: retrying without operator intervention cannot succeed. The rest
// are transient and feed the backoff schedule.
type FailureClass string

const (
	ClassKeyNotFound         FailureClass = "KeyNotFound"
	ClassWrongKey            FailureClass = "WrongKey"
	ClassInvalidKeyFormat    FailureClass = "InvalidKeyFormat"
	ClassUnsupportedFormat   FailureClass = "UnsupportedFormat"
	ClassCorruptedFile       FailureClass = "CorruptedFile"
	ClassNetworkTimeout      FailureClass = "NetworkTimeout"
	ClassProviderUnavailable FailureClass = "ProviderUnavailable"
	ClassPermissionDenied    FailureClass = "PermissionDenied"
	ClassUnknown             FailureClass = "Unknown"
)

// Permanent reports whether retrying this class is pointless.
func (c FailureClass) Permanent() bool {
	switch c {
	case ClassKeyNotFound, ClassWrongKey, ClassInvalidKeyFormat, ClassUnsupportedFormat, ClassCorruptedFile:
		return true
	}
	return false
}

// sops exit codes, from the upstream cmd/sops/codes table. Only the ones the
// decrypt path can produce are mapped; everything else falls through to the
// message heuristics.
const (
	exitCouldNotReadInputFile = 2
	exitErrorReadingConfig    = 5
	exitErrorDecryptingMac    = 24
	exitErrorDecryptingTree   = 25
	exitMacMismatch           = 51
	exitMacNotFound           = 52
	exitInvalidTreeObject     = 100
	exitCouldNotRetrieveKey   = 128
)

// Classify maps a decryptor failure to a FailureClass. The exit code is
// consulted first; the process output is only a fallback for codes the table
// does not cover. exitCode < 0 means the process never ran or was killed.
func Classify(exitCode int, output string) FailureClass {
	switch exitCode {
	case exitCouldNotRetrieveKey:
		return ClassKeyNotFound
	case exitErrorDecryptingMac, exitErrorDecryptingTree:
		return ClassWrongKey
	case exitMacMismatch, exitMacNotFound, exitCouldNotReadInputFile:
		return ClassCorruptedFile
	case exitInvalidTreeObject:
		return ClassUnsupportedFormat
	}
	return classifyOutput(output)
}

func classifyOutput(output string) FailureClass {
	out := strings.ToLower(output)
	switch {
	case contains(out, "no secret key", "could not retrieve data key", "no key could decrypt"):
		return ClassKeyNotFound
	case contains(out, "decryption failed", "bad key", "mac mismatch"):
		return ClassWrongKey
	case contains(out, "no valid openpgp data", "invalid armor", "malformed key"):
		return ClassInvalidKeyFormat
	case contains(out, "sops metadata not found", "unsupported format", "not an encrypted file"):
		return ClassUnsupportedFormat
	case contains(out, "corrupt", "truncated", "unexpected end"):
		return ClassCorruptedFile
	case contains(out, "timeout", "timed out", "deadline exceeded"):
		return ClassNetworkTimeout
	case contains(out, "connection refused", "service unavailable", "could not connect", "no such host"):
		return ClassProviderUnavailable
	case contains(out, "permission denied", "access denied", "forbidden"):
		return ClassPermissionDenied
	}
	return ClassUnknown
}

func contains(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
