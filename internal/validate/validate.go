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

// Package validate holds the pure spec-field validators. Every function is
// side-effect free and safe to call from both the reconciler and the
// admission webhook.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation"

	configv1alpha1 "github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

var (
	durationRe    = regexp.MustCompile(`^(\d+)([smhd])$`)
	gcpProjectRe  = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	gcpLocationRe = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]+$`)

	awsStandardRe = regexp.MustCompile(`^[a-z]{2}-[a-z]+-[0-9]$`)
	awsGovRe      = regexp.MustCompile(`^us-gov-[a-z]+-[0-9]$`)
	awsIsoRe      = regexp.MustCompile(`^us-iso[a-z]?-[a-z]+-[0-9]$`)
	awsCnRe       = regexp.MustCompile(`^cn-[a-z]+-[0-9]$`)

	azureVaultRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]{1,22}[a-zA-Z0-9]$`)
	azureLocationRe = regexp.MustCompile(`^[a-z]+[0-9]*$`)

	paramSegmentRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// KubernetesName checks an RFC-1123 subdomain name (<=253 chars).
func KubernetesName(name string) error {
	if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
		return fmt.Errorf("invalid name %q: %s", name, errs[0])
	}
	return nil
}

// KubernetesNamespace checks an RFC-1123 label name.
func KubernetesNamespace(ns string) error {
	if errs := validation.IsDNS1123Label(ns); len(errs) > 0 {
		return fmt.Errorf("invalid namespace %q: %s", ns, errs[0])
	}
	return nil
}

// EnvironmentLabel checks the environment directory name (RFC-1123 label rules).
func EnvironmentLabel(env string) error {
	if errs := validation.IsDNS1123Label(env); len(errs) > 0 {
		return fmt.Errorf("invalid environment %q: %s", env, errs[0])
	}
	return nil
}

// Duration parses "<posInt><unit>" with unit s, m, h or d. Zero values,
// decimals and multi-unit strings are rejected. The minimum floor is the
// caller's concern.
func Duration(raw string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: want <number><unit> with unit s, m, h or d", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid duration %q: must be positive", raw)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

// DurationAtLeast parses raw and enforces a per-field floor.
func DurationAtLeast(raw string, min time.Duration) (time.Duration, error) {
	d, err := Duration(raw)
	if err != nil {
		return 0, err
	}
	if d < min {
		return 0, fmt.Errorf("duration %q is below the minimum %s", raw, min)
	}
	return d, nil
}

// SourceKind checks the sourceRef kind, case-sensitively.
func SourceKind(kind configv1alpha1.SourceKind) error {
	switch kind {
	case configv1alpha1.SourceKindGitRepository, configv1alpha1.SourceKindApplication:
		return nil
	}
	return fmt.Errorf("invalid sourceRef.kind %q: must be GitRepository or Application", kind)
}

// GCPProjectID checks a Google Cloud project identifier.
func GCPProjectID(project string) error {
	if !gcpProjectRe.MatchString(project) {
		return fmt.Errorf("invalid GCP project %q: must match %s", project, gcpProjectRe)
	}
	return nil
}

// GCPLocation checks a Google Cloud location such as "us-central1".
func GCPLocation(location string) error {
	if !gcpLocationRe.MatchString(location) {
		return fmt.Errorf("invalid GCP location %q: must match %s", location, gcpLocationRe)
	}
	return nil
}

// AWSRegion checks an AWS region against the standard, gov, iso and cn
// shapes. The literal "local" is accepted for test stacks.
func AWSRegion(region string) error {
	if region == "local" {
		return nil
	}
	for _, re := range []*regexp.Regexp{awsStandardRe, awsGovRe, awsIsoRe, awsCnRe} {
		if re.MatchString(region) {
			return nil
		}
	}
	return fmt.Errorf("invalid AWS region %q", region)
}

// AzureVaultName checks a Key Vault name (3-24 chars, alphanumeric and
// hyphens, no consecutive hyphens).
func AzureVaultName(vault string) error {
	if !azureVaultRe.MatchString(vault) {
		return fmt.Errorf("invalid Azure vault name %q: must match %s", vault, azureVaultRe)
	}
	if strings.Contains(vault, "--") {
		return fmt.Errorf("invalid Azure vault name %q: consecutive hyphens are not allowed", vault)
	}
	return nil
}

// AzureLocation checks an Azure region such as "westeurope" or "uksouth2".
func AzureLocation(location string) error {
	if !azureLocationRe.MatchString(location) {
		return fmt.Errorf("invalid Azure location %q: must match %s", location, azureLocationRe)
	}
	return nil
}

// ParameterPath checks a parameter-store path: leading slash, non-empty
// segments of [A-Za-z0-9._-].
func ParameterPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid parameter path %q: must start with /", path)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if !paramSegmentRe.MatchString(seg) {
			return fmt.Errorf("invalid parameter path %q: bad segment %q", path, seg)
		}
	}
	return nil
}

// Spec validates a whole SecretManagerConfigSpec. It is invoked once per
// reconciliation before any I/O, and by the admission webhook. minPull and
// minReconcile are the configured interval floors.
func Spec(spec *configv1alpha1.SecretManagerConfigSpec, minPull, minReconcile time.Duration) error {
	if err := SourceKind(spec.SourceRef.Kind); err != nil {
		return err
	}
	if err := KubernetesName(spec.SourceRef.Name); err != nil {
		return fmt.Errorf("sourceRef.name: %w", err)
	}
	if spec.SourceRef.Namespace != "" {
		if err := KubernetesNamespace(spec.SourceRef.Namespace); err != nil {
			return fmt.Errorf("sourceRef.namespace: %w", err)
		}
	}

	if err := provider(&spec.Provider); err != nil {
		return err
	}

	if err := EnvironmentLabel(spec.Secrets.Environment); err != nil {
		return fmt.Errorf("secrets.environment: %w", err)
	}

	if spec.GitRepositoryPullInterval != "" {
		if _, err := DurationAtLeast(spec.GitRepositoryPullInterval, minPull); err != nil {
			return fmt.Errorf("gitRepositoryPullInterval: %w", err)
		}
	}
	if spec.ReconcileInterval != "" {
		if _, err := DurationAtLeast(spec.ReconcileInterval, minReconcile); err != nil {
			return fmt.Errorf("reconcileInterval: %w", err)
		}
	}

	if cfgs := spec.Configs; cfgs != nil && cfgs.Enabled {
		switch cfgs.Store {
		case "", configv1alpha1.ConfigStoreSecretManager, configv1alpha1.ConfigStoreParameterManager:
		default:
			return fmt.Errorf("configs.store: unknown store %q", cfgs.Store)
		}
		if cfgs.ParameterPath != "" {
			if err := ParameterPath(cfgs.ParameterPath); err != nil {
				return fmt.Errorf("configs.parameterPath: %w", err)
			}
		}
	}

	return nil
}

func provider(p *configv1alpha1.ProviderConfig) error {
	set := 0
	if p.GCP != nil {
		set++
	}
	if p.AWS != nil {
		set++
	}
	if p.Azure != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("provider: exactly one of gcp, aws or azure must be set, got %d", set)
	}

	switch {
	case p.GCP != nil:
		if err := GCPProjectID(p.GCP.ProjectID); err != nil {
			return fmt.Errorf("provider.gcp.projectId: %w", err)
		}
		if err := GCPLocation(p.GCP.Location); err != nil {
			return fmt.Errorf("provider.gcp.location: %w", err)
		}
	case p.AWS != nil:
		if err := AWSRegion(p.AWS.Region); err != nil {
			return fmt.Errorf("provider.aws.region: %w", err)
		}
	case p.Azure != nil:
		if err := AzureVaultName(p.Azure.VaultName); err != nil {
			return fmt.Errorf("provider.azure.vaultName: %w", err)
		}
		if err := AzureLocation(p.Azure.Location); err != nil {
			return fmt.Errorf("provider.azure.location: %w", err)
		}
	}
	return nil
}
