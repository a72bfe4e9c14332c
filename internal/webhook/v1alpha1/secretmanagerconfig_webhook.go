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

// Package v1alpha1 holds the admission webhooks for the configbutler.ai API
// group. The validating webhook runs the same spec checks the reconciler
// runs, so a bad spec is rejected at admission instead of failing its first
// reconciliation.
package v1alpha1

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	configbutleraiv1alpha1 "github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/validate"
)

var secretmanagerconfiglog = logf.Log.WithName("secretmanagerconfig-resource")

// SetupSecretManagerConfigWebhookWithManager registers the webhook for
// SecretManagerConfig in the manager.
func SetupSecretManagerConfigWebhookWithManager(mgr ctrl.Manager, minPull, minReconcile time.Duration) error {
	return ctrl.NewWebhookManagedBy(mgr).For(&configbutleraiv1alpha1.SecretManagerConfig{}).
		WithValidator(&SecretManagerConfigCustomValidator{
			MinPullInterval:      minPull,
			MinReconcileInterval: minReconcile,
		}).
		Complete()
}

// +kubebuilder:webhook:path=/validate-configbutler-ai-v1alpha1-secretmanagerconfig,mutating=false,failurePolicy=fail,sideEffects=None,groups=configbutler.ai,resources=secretmanagerconfigs,verbs=create;update,versions=v1alpha1,name=vsecretmanagerconfig-v1alpha1.kb.io,admissionReviewVersions=v1

// SecretManagerConfigCustomValidator validates SecretManagerConfig resources
// on create and update. The interval floors come from the controller
// configuration so admission and reconciliation agree.
type SecretManagerConfigCustomValidator struct {
	MinPullInterval      time.Duration
	MinReconcileInterval time.Duration
}

var _ webhook.CustomValidator = &SecretManagerConfigCustomValidator{}

// ValidateCreate implements webhook.CustomValidator.
func (v *SecretManagerConfigCustomValidator) ValidateCreate(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	smc, ok := obj.(*configbutleraiv1alpha1.SecretManagerConfig)
	if !ok {
		return nil, fmt.Errorf("expected a SecretManagerConfig object but got %T", obj)
	}
	secretmanagerconfiglog.Info("Validation for SecretManagerConfig upon creation", "name", smc.GetName())

	return nil, validate.Spec(&smc.Spec, v.MinPullInterval, v.MinReconcileInterval)
}

// ValidateUpdate implements webhook.CustomValidator.
func (v *SecretManagerConfigCustomValidator) ValidateUpdate(_ context.Context, oldObj, newObj runtime.Object) (admission.Warnings, error) {
	smc, ok := newObj.(*configbutleraiv1alpha1.SecretManagerConfig)
	if !ok {
		return nil, fmt.Errorf("expected a SecretManagerConfig object for the newObj but got %T", newObj)
	}
	secretmanagerconfiglog.Info("Validation for SecretManagerConfig upon update", "name", smc.GetName())

	var warnings admission.Warnings
	if old, ok := oldObj.(*configbutleraiv1alpha1.SecretManagerConfig); ok {
		// Switching providers re-creates every secret under the new backend;
		// existing state in the old backend is left behind.
		if providerKind(&old.Spec) != providerKind(&smc.Spec) {
			warnings = append(warnings,
				"provider changed: secrets already written to the previous provider are not migrated or cleaned up")
		}
	}

	return warnings, validate.Spec(&smc.Spec, v.MinPullInterval, v.MinReconcileInterval)
}

// ValidateDelete implements webhook.CustomValidator. Deletion is always
// allowed; provider-side state survives by design.
func (v *SecretManagerConfigCustomValidator) ValidateDelete(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	smc, ok := obj.(*configbutleraiv1alpha1.SecretManagerConfig)
	if !ok {
		return nil, fmt.Errorf("expected a SecretManagerConfig object but got %T", obj)
	}
	secretmanagerconfiglog.Info("Validation for SecretManagerConfig upon deletion", "name", smc.GetName())

	return nil, nil
}

func providerKind(spec *configbutleraiv1alpha1.SecretManagerConfigSpec) string {
	switch {
	case spec.Provider.GCP != nil:
		return "gcp"
	case spec.Provider.AWS != nil:
		return "aws"
	case spec.Provider.Azure != nil:
		return "azure"
	}
	return ""
}
