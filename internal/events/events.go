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

// Package events holds the Kubernetes event reasons the controller emits on
// SecretManagerConfig resources. Reasons are stable identifiers operators
// alert on; messages carry the variable detail.
package events

const (
	// ReasonReconciled marks a fully successful reconciliation.
	ReasonReconciled = "Reconciled"

	// ReasonValidationFailed marks a spec that cannot be acted on.
	ReasonValidationFailed = "ValidationFailed"

	// ReasonSourceNotFound marks a missing GitOps source object; the
	// controller waits for it to appear.
	ReasonSourceNotFound = "SourceNotFound"

	// ReasonArtifactFailed marks a failed artifact download, unpack or clone.
	ReasonArtifactFailed = "ArtifactFailed"

	// ReasonArtifactCorrupt marks an artifact that failed digest verification.
	ReasonArtifactCorrupt = "ArtifactCorrupt"

	// ReasonDecryptionFailed marks a SOPS decryption failure; the message
	// names the failure class.
	ReasonDecryptionFailed = "DecryptionFailed"

	// ReasonSopsKeyMissing marks a reconciliation blocked on the cluster
	// SOPS key secret.
	ReasonSopsKeyMissing = "SopsKeyMissing"

	// ReasonKustomizeBuildFailed marks a non-zero kustomize build exit.
	ReasonKustomizeBuildFailed = "KustomizeBuildFailed"

	// ReasonSyncFailed marks a converge run where every service failed.
	ReasonSyncFailed = "SyncFailed"

	// ReasonPartialFailure marks a converge run with mixed results; the
	// message names the failing services.
	ReasonPartialFailure = "PartialFailure"

	// ReasonDriftDetected marks a provider value differing from Git while
	// triggerUpdate is off.
	ReasonDriftDetected = "DriftDetected"

	// ReasonSuspended marks a reconciliation skipped because spec.suspend
	// is set.
	ReasonSuspended = "Suspended"
)
