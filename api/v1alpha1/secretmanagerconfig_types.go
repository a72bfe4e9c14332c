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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SourceKind enumerates the GitOps source kinds a SecretManagerConfig may consume.
type SourceKind string

const (
	// SourceKindGitRepository consumes the artifact published by a Flux GitRepository.
	SourceKindGitRepository SourceKind = "GitRepository"
	// SourceKindApplication consumes the source tree declared by an Argo CD Application.
	SourceKindApplication SourceKind = "Application"
)

// SourceReference points at the GitOps object whose artifact feeds this config.
type SourceReference struct {
	// Kind of the source object.
	// +required
	// +kubebuilder:validation:Enum=GitRepository;Application
	Kind SourceKind `json:"kind"`

	// Name of the source object.
	// +required
	// +kubebuilder:validation:MinLength=1
	Name string `json:"name"`

	// Namespace of the source object.
	// Defaults to the SecretManagerConfig's namespace if not specified.
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// GCPProvider selects Google Secret Manager, with Parameter Manager for properties.
type GCPProvider struct {
	// ProjectID is the Google Cloud project hosting the secret store.
	// +required
	// +kubebuilder:validation:MinLength=6
	ProjectID string `json:"projectId"`

	// Location is the replication location, e.g. "us-central1".
	// +required
	Location string `json:"location"`

	// Auth optionally references a Secret with a service account key.
	// Ambient credentials (workload identity) are used when absent.
	// +optional
	Auth *ProviderAuth `json:"auth,omitempty"`
}

// AWSProvider selects AWS Secrets Manager, with SSM Parameter Store for properties.
type AWSProvider struct {
	// Region is the AWS region, e.g. "eu-west-1".
	// +required
	Region string `json:"region"`

	// Auth optionally references a Secret with access key credentials.
	// The default credential chain is used when absent.
	// +optional
	Auth *ProviderAuth `json:"auth,omitempty"`
}

// AzureProvider selects Azure Key Vault, with App Configuration for properties.
type AzureProvider struct {
	// VaultName is the Key Vault name (not the full URI).
	// +required
	VaultName string `json:"vaultName"`

	// Location is the Azure region, e.g. "westeurope".
	// +required
	Location string `json:"location"`

	// Auth optionally references a Secret with service principal credentials.
	// DefaultAzureCredential is used when absent.
	// +optional
	Auth *ProviderAuth `json:"auth,omitempty"`
}

// ProviderConfig is a tagged union; exactly one member must be set.
type ProviderConfig struct {
	// +optional
	GCP *GCPProvider `json:"gcp,omitempty"`

	// +optional
	AWS *AWSProvider `json:"aws,omitempty"`

	// +optional
	Azure *AzureProvider `json:"azure,omitempty"`
}

// SecretsSpec describes where secret material lives inside the artifact and
// how provider names are derived from it.
type SecretsSpec struct {
	// Environment is the environment directory to read, e.g. "dev".
	// +required
	// +kubebuilder:validation:MinLength=1
	Environment string `json:"environment"`

	// Prefix is prepended to every provider secret name.
	// +optional
	Prefix string `json:"prefix,omitempty"`

	// Suffix is appended to every provider secret name.
	// +optional
	Suffix string `json:"suffix,omitempty"`

	// KustomizePath switches extraction to kustomize mode: the path, relative
	// to the artifact root, is built with `kustomize build` and the emitted
	// Secret/ConfigMap documents become the desired state.
	// +optional
	KustomizePath string `json:"kustomizePath,omitempty"`

	// BasePath narrows raw-file discovery to a subtree of the artifact.
	// +optional
	BasePath string `json:"basePath,omitempty"`
}

// ConfigStore enumerates the property-store surfaces.
type ConfigStore string

const (
	// ConfigStoreSecretManager routes properties into the secret store itself.
	ConfigStoreSecretManager ConfigStore = "SecretManager"
	// ConfigStoreParameterManager routes properties into the provider's parameter store.
	ConfigStoreParameterManager ConfigStore = "ParameterManager"
)

// ConfigsSpec routes application properties to a provider config store.
type ConfigsSpec struct {
	// Enabled turns property syncing on.
	// +required
	Enabled bool `json:"enabled"`

	// Store selects the target surface. Defaults to ParameterManager.
	// +optional
	// +kubebuilder:validation:Enum=SecretManager;ParameterManager
	Store ConfigStore `json:"store,omitempty"`

	// ParameterPath is the path prefix for parameter-store entries,
	// e.g. "/apps/payments". Must start with "/".
	// +optional
	ParameterPath string `json:"parameterPath,omitempty"`

	// AppConfigEndpoint is the Azure App Configuration endpoint to use
	// instead of the account derived from the vault name.
	// +optional
	AppConfigEndpoint string `json:"appConfigEndpoint,omitempty"`
}

// ProviderAuth references a Secret holding static provider credentials.
type ProviderAuth struct {
	// SecretRef names the credentials Secret in the config's namespace.
	// +required
	SecretRef LocalObjectReference `json:"secretRef"`
}

// NotificationSettings is advisory; it never influences convergence.
type NotificationSettings struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`

	// WebhookURL receives drift and failure notifications.
	// +optional
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// LoggingSettings is advisory; it never influences convergence.
type LoggingSettings struct {
	// Level overrides the controller default for this resource's log lines.
	// +optional
	// +kubebuilder:validation:Enum=debug;info;warn;error
	Level string `json:"level,omitempty"`
}

// HotReloadSettings is advisory; it never influences convergence.
type HotReloadSettings struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`
}

// OTelSettings is advisory; it never influences convergence.
type OTelSettings struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`

	// +optional
	Endpoint string `json:"endpoint,omitempty"`
}

// SecretManagerConfigSpec defines the desired state of SecretManagerConfig.
type SecretManagerConfigSpec struct {
	// SourceRef identifies the GitOps object that supplies the artifact.
	// +required
	SourceRef SourceReference `json:"sourceRef"`

	// Provider selects the cloud backend. Exactly one member must be set.
	// +required
	Provider ProviderConfig `json:"provider"`

	// Secrets configures extraction and naming.
	// +required
	Secrets SecretsSpec `json:"secrets"`

	// Configs optionally routes properties to a provider config store.
	// +optional
	Configs *ConfigsSpec `json:"configs,omitempty"`

	// GitRepositoryPullInterval caps how often the artifact is re-fetched.
	// Format: <number><unit> with unit s, m, h or d. Minimum 30s.
	// +optional
	// +kubebuilder:default="5m"
	GitRepositoryPullInterval string `json:"gitRepositoryPullInterval,omitempty"`

	// ReconcileInterval is the steady-state requeue period.
	// Format: <number><unit> with unit s, m, h or d. Minimum 1m.
	// +optional
	// +kubebuilder:default="10m"
	ReconcileInterval string `json:"reconcileInterval,omitempty"`

	// DiffDiscovery reports drift between Git and the provider without writing.
	// +optional
	// +kubebuilder:default=true
	DiffDiscovery *bool `json:"diffDiscovery,omitempty"`

	// TriggerUpdate writes provider state to match Git.
	// +optional
	// +kubebuilder:default=true
	TriggerUpdate *bool `json:"triggerUpdate,omitempty"`

	// Suspend stops reconciliation entirely until cleared.
	// +optional
	Suspend bool `json:"suspend,omitempty"`

	// SuspendGitPulls keeps reconciling provider state from the cached
	// artifact but skips source refreshes.
	// +optional
	SuspendGitPulls bool `json:"suspendGitPulls,omitempty"`

	// +optional
	Notifications *NotificationSettings `json:"notifications,omitempty"`

	// +optional
	Logging *LoggingSettings `json:"logging,omitempty"`

	// +optional
	HotReload *HotReloadSettings `json:"hotReload,omitempty"`

	// +optional
	OTel *OTelSettings `json:"otel,omitempty"`
}

// SyncPhase is the coarse lifecycle phase surfaced to kubectl.
type SyncPhase string

const (
	PhasePending        SyncPhase = "Pending"
	PhaseStarted        SyncPhase = "Started"
	PhaseCloning        SyncPhase = "Cloning"
	PhaseUpdating       SyncPhase = "Updating"
	PhaseFailed         SyncPhase = "Failed"
	PhasePartialFailure SyncPhase = "PartialFailure"
	PhaseReady          SyncPhase = "Ready"
)

// DecryptionState summarizes the last SOPS decryption outcome.
type DecryptionState string

const (
	DecryptionSuccess          DecryptionState = "Success"
	DecryptionTransientFailure DecryptionState = "TransientFailure"
	DecryptionPermanentFailure DecryptionState = "PermanentFailure"
	DecryptionNotApplicable    DecryptionState = "NotApplicable"
)

// ResourceSyncState tracks one provider-side secret or property.
type ResourceSyncState struct {
	// Exists is true once a create or put for this name has succeeded.
	// +optional
	Exists bool `json:"exists"`

	// UpdateCount counts value changes applied after the initial create;
	// the first write leaves it at zero.
	// +optional
	UpdateCount int64 `json:"updateCount"`
}

// SyncState holds the per-name bookkeeping for both surfaces.
type SyncState struct {
	// +optional
	Secrets map[string]ResourceSyncState `json:"secrets,omitempty"`

	// +optional
	Properties map[string]ResourceSyncState `json:"properties,omitempty"`
}

// SecretManagerConfigStatus defines the observed state of SecretManagerConfig.
type SecretManagerConfigStatus struct {
	// Phase is the coarse lifecycle phase.
	// +optional
	Phase SyncPhase `json:"phase,omitempty"`

	// Description explains the current phase in one line.
	// +optional
	Description string `json:"description,omitempty"`

	// ObservedGeneration is the generation last reconciled to completion
	// (Ready or PartialFailure).
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	LastReconcileTime *metav1.Time `json:"lastReconcileTime,omitempty"`

	// +optional
	NextReconcileTime *metav1.Time `json:"nextReconcileTime,omitempty"`

	// SecretsSynced counts sync.secrets entries with exists=true.
	// +optional
	SecretsSynced int `json:"secretsSynced,omitempty"`

	// Conditions represent the latest available observations of an object's state
	// +optional
	// +patchMergeKey=type
	// +patchStrategy=merge
	Conditions []metav1.Condition `json:"conditions,omitempty" patchStrategy:"merge" patchMergeKey:"type"`

	// Sync is the per-name provider bookkeeping.
	// +optional
	Sync SyncState `json:"sync,omitempty"`

	// DecryptionStatus summarizes the last SOPS outcome.
	// +optional
	DecryptionStatus DecryptionState `json:"decryptionStatus,omitempty"`

	// +optional
	DecryptionTime *metav1.Time `json:"decryptionTime,omitempty"`

	// LastDecryptionError is the last classified decryption failure.
	// +optional
	LastDecryptionError string `json:"lastDecryptionError,omitempty"`

	// SopsKeyAvailable mirrors the cluster key probe.
	// +optional
	SopsKeyAvailable *bool `json:"sopsKeyAvailable,omitempty"`

	// +optional
	SopsKeySecretName string `json:"sopsKeySecretName,omitempty"`

	// +optional
	SopsKeyNamespace string `json:"sopsKeyNamespace,omitempty"`

	// +optional
	SopsKeyLastChecked *metav1.Time `json:"sopsKeyLastChecked,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=smc
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Description",type=string,JSONPath=`.status.description`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// SecretManagerConfig is the Schema for the secretmanagerconfigs API.
type SecretManagerConfig struct {
	metav1.TypeMeta `json:",inline"`

	// metadata is a standard object metadata
	// +optional
	metav1.ObjectMeta `json:"metadata,omitempty,omitzero"`

	// spec defines the desired state of SecretManagerConfig
	// +required
	Spec SecretManagerConfigSpec `json:"spec"`

	// status defines the observed state of SecretManagerConfig
	// +optional
	Status SecretManagerConfigStatus `json:"status,omitempty,omitzero"`
}

// +kubebuilder:object:root=true

// SecretManagerConfigList contains a list of SecretManagerConfig.
type SecretManagerConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []SecretManagerConfig `json:"items"`
}

// DiffDiscoveryEnabled resolves the pointer default (true when unset).
func (s *SecretManagerConfigSpec) DiffDiscoveryEnabled() bool {
	return s.DiffDiscovery == nil || *s.DiffDiscovery
}

// TriggerUpdateEnabled resolves the pointer default (true when unset).
func (s *SecretManagerConfigSpec) TriggerUpdateEnabled() bool {
	return s.TriggerUpdate == nil || *s.TriggerUpdate
}

// SourceNamespace returns the source namespace, falling back to the config's own.
func (c *SecretManagerConfig) SourceNamespace() string {
	if c.Spec.SourceRef.Namespace != "" {
		return c.Spec.SourceRef.Namespace
	}
	return c.Namespace
}

func init() {
	SchemeBuilder.Register(&SecretManagerConfig{}, &SecretManagerConfigList{})
}
