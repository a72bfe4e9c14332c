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

package controller

import (
	"github.com/ConfigButler/secret-manager-operator/internal/artifact"
	"github.com/ConfigButler/secret-manager-operator/internal/events"
	"github.com/ConfigButler/secret-manager-operator/internal/extract"
	"github.com/ConfigButler/secret-manager-operator/internal/provider"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

// errorKind is the controller's view of a reconciliation failure. Each kind
// maps to exactly one scheduling behavior: wait for a watch event, retry with
// backoff, or stop until the spec or source changes.
type errorKind string

const (
	kindValidation         errorKind = "Validation"
	kindSourceNotFound     errorKind = "SourceNotFound"
	kindArtifactMissing    errorKind = "ArtifactMissing"
	kindArtifactCorrupt    errorKind = "ArtifactCorrupt"
	kindSopsKeyMissing     errorKind = "SopsKeyMissing"
	kindSopsPermanent      errorKind = "SopsPermanent"
	kindSopsTransient      errorKind = "SopsTransient"
	kindKustomizeBuildFail errorKind = "KustomizeBuildFail"
	kindProviderPermission errorKind = "ProviderPermission"
	kindProviderRateLimit  errorKind = "ProviderRateLimit"
	kindProviderOversize   errorKind = "ProviderOversize"
	kindProviderOther      errorKind = "ProviderOther"
)

// classifyError maps a typed error from the resolve/extract/converge chain to
// its kind. Unrecognized errors count as provider-other: transient, retried
// with backoff.
func classifyError(err error) errorKind {
	switch {
	case artifact.IsSourceNotFound(err):
		return kindSourceNotFound
	case artifact.IsArtifactCorrupt(err):
		return kindArtifactCorrupt
	case artifact.IsArtifactMissing(err):
		return kindArtifactMissing
	case provider.IsOversize(err):
		return kindProviderOversize
	case provider.IsPermission(err):
		return kindProviderPermission
	case provider.IsRateLimit(err):
		return kindProviderRateLimit
	}

	if _, ok := extract.AsBuildError(err); ok {
		return kindKustomizeBuildFail
	}
	if de, ok := sops.AsDecryptError(err); ok {
		if de.Class == sops.ClassKeyNotFound {
			return kindSopsKeyMissing
		}
		if de.Class.Permanent() {
			return kindSopsPermanent
		}
		return kindSopsTransient
	}

	return kindProviderOther
}

// awaitsChange reports whether the kind blocks on an external precondition.
// No retry timer is armed; a watch event wakes the resource.
func (k errorKind) awaitsChange() bool {
	return k == kindSourceNotFound || k == kindSopsKeyMissing
}

// permanent reports whether retrying without a spec or source change is
// pointless.
func (k errorKind) permanent() bool {
	switch k {
	case kindValidation, kindArtifactCorrupt, kindSopsPermanent, kindKustomizeBuildFail, kindProviderOversize:
		return true
	}
	return false
}

// eventReason maps the kind to the event reason recorded on the resource.
func (k errorKind) eventReason() string {
	switch k {
	case kindValidation:
		return events.ReasonValidationFailed
	case kindSourceNotFound:
		return events.ReasonSourceNotFound
	case kindArtifactCorrupt:
		return events.ReasonArtifactCorrupt
	case kindArtifactMissing:
		return events.ReasonArtifactFailed
	case kindSopsKeyMissing:
		return events.ReasonSopsKeyMissing
	case kindSopsPermanent, kindSopsTransient:
		return events.ReasonDecryptionFailed
	case kindKustomizeBuildFail:
		return events.ReasonKustomizeBuildFailed
	default:
		return events.ReasonSyncFailed
	}
}
