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

// Package syncer converges extracted content onto a provider backend and
// reports the resulting per-name sync state.
package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/extract"
	"github.com/ConfigButler/secret-manager-operator/internal/provider"
)

// Engine applies desired content to one provider backend.
type Engine struct {
	Provider provider.Provider
	Log      logr.Logger

	// PermissionRetried routes forbidden vendor responses through the
	// per-service failure path. The reconciler sets it once a permission
	// error has been through one backoff retry, so a still-broken IAM
	// binding on one service stops blocking the others.
	PermissionRetried bool
}

// Converge walks every service in desired and reconciles the provider
// against it. prior is the resource's own last observation; spec supplies
// naming and the triggerUpdate / diffDiscovery switches.
//
// Secrets are processed before properties. A permanent error fails only the
// service it occurred in: the failure is recorded in the report and the run
// continues with the next service. Oversize values are always permanent;
// permission errors become permanent after PermissionRetried. Any other
// provider error aborts the converge and is returned for backoff, with the
// report holding everything applied up to that point.
//
// When triggerUpdate is off nothing is written. With diffDiscovery on,
// desired values are compared against the provider and mismatches are
// reported as drift.
func (e *Engine) Converge(ctx context.Context, desired extract.Content, prior v1alpha1.SyncState, spec *v1alpha1.SecretManagerConfigSpec) (*Report, error) {
	rep := newReport(prior)

	for _, svc := range desired.Services {
		if err := e.syncSecrets(ctx, rep, svc, spec); err != nil {
			rep.Outcome = Failed
			return rep, err
		}
	}
	if spec.TriggerUpdateEnabled() {
		if err := e.disableAbsent(ctx, rep, desired, prior, spec); err != nil {
			rep.Outcome = Failed
			return rep, err
		}
	}

	if propertiesEnabled(spec) {
		for _, svc := range desired.Services {
			if _, failed := rep.FailedServices[svc.Name]; failed {
				continue
			}
			if err := e.syncProperties(ctx, rep, svc, spec); err != nil {
				rep.Outcome = Failed
				return rep, err
			}
		}
	}

	rep.finish(len(desired.Services))
	return rep, nil
}

// ProviderName derives the provider-side name for one extracted key. Keys
// from a service directory get the service name folded in; keys at the
// artifact root use the key alone.
func ProviderName(spec *v1alpha1.SecretManagerConfigSpec, service, key string) string {
	if service != "" && service != extract.DefaultService {
		key = service + "-" + key
	}
	return provider.ConstructName(spec.Secrets.Prefix, key, spec.Secrets.Suffix)
}

func (e *Engine) syncSecrets(ctx context.Context, rep *Report, svc extract.ServiceContent, spec *v1alpha1.SecretManagerConfigSpec) error {
	trigger := spec.TriggerUpdateEnabled()
	log := e.Log.WithValues("service", svc.Name)

	for _, key := range sortedKeys(svc.Secrets) {
		entry := svc.Secrets[key]
		name := ProviderName(spec, svc.Name, key)

		if entry.Disabled {
			if !trigger {
				continue
			}
			changed, err := e.Provider.DisableSecret(ctx, name)
			if err != nil {
				return fmt.Errorf("disabling secret %s: %w", name, err)
			}
			if changed {
				log.Info("disabled secret for commented key", "name", name, "key", key)
			}
			continue
		}

		if !trigger {
			if !spec.DiffDiscoveryEnabled() {
				continue
			}
			value, found, err := e.Provider.GetSecretValue(ctx, name)
			if err != nil {
				return fmt.Errorf("reading secret %s: %w", name, err)
			}
			if !found || value != entry.Value {
				log.Info("secret drift detected", "name", name, "readable", found)
				rep.Drifts = append(rep.Drifts, Drift{Service: svc.Name, Name: name})
			}
			continue
		}

		// A name synced before may have been disabled since. Re-enabling is
		// a no-op when it is already readable, and bringing the old value
		// back first lets the upsert's compare skip an unchanged write.
		if _, tracked := rep.Secrets[name]; tracked {
			changed, err := e.Provider.EnableSecret(ctx, name)
			if err != nil {
				return fmt.Errorf("enabling secret %s: %w", name, err)
			}
			if changed {
				log.Info("re-enabled secret", "name", name, "key", key)
			}
		}

		changed, err := e.Provider.UpsertSecret(ctx, name, entry.Value)
		if err != nil {
			if e.failsOnlyService(err) {
				e.failService(rep, svc.Name, err)
				return nil
			}
			return fmt.Errorf("upserting secret %s: %w", name, err)
		}
		st := rep.Secrets[name]
		existed := st.Exists
		st.Exists = true
		if changed && existed {
			st.UpdateCount++
			log.Info("updated secret", "name", name, "key", key)
		} else if changed {
			log.Info("created secret", "name", name, "key", key)
		}
		rep.Secrets[name] = st
	}
	return nil
}

// disableAbsent disables every previously tracked secret whose key no longer
// appears in the source. Absence alone never deletes provider state, and the
// entry stays in the report so the name remains tracked.
func (e *Engine) disableAbsent(ctx context.Context, rep *Report, desired extract.Content, prior v1alpha1.SyncState, spec *v1alpha1.SecretManagerConfigSpec) error {
	if len(prior.Secrets) == 0 {
		return nil
	}

	// Commented keys count as claimed: they are disabled explicitly above,
	// not swept here.
	claimed := make(map[string]struct{})
	for _, svc := range desired.Services {
		for key := range svc.Secrets {
			claimed[ProviderName(spec, svc.Name, key)] = struct{}{}
		}
	}

	for _, name := range sortedKeys(prior.Secrets) {
		if _, ok := claimed[name]; ok {
			continue
		}
		changed, err := e.Provider.DisableSecret(ctx, name)
		if err != nil {
			return fmt.Errorf("disabling secret %s: %w", name, err)
		}
		if changed {
			e.Log.Info("disabled secret absent from source", "name", name)
		}
	}
	return nil
}

func (e *Engine) syncProperties(ctx context.Context, rep *Report, svc extract.ServiceContent, spec *v1alpha1.SecretManagerConfigSpec) error {
	trigger := spec.TriggerUpdateEnabled()
	log := e.Log.WithValues("service", svc.Name)

	for _, key := range sortedKeys(svc.Properties) {
		entry := svc.Properties[key]
		name := ProviderName(spec, svc.Name, key)

		if entry.Disabled {
			if !trigger {
				continue
			}
			// The config surface has no disabled state; a commented property
			// is an explicit removal.
			if err := e.Provider.DeleteConfig(ctx, name); err != nil {
				return fmt.Errorf("deleting property %s: %w", name, err)
			}
			if st, tracked := rep.Properties[name]; tracked && st.Exists {
				st.Exists = false
				rep.Properties[name] = st
				log.Info("deleted property for commented key", "name", name, "key", key)
			}
			continue
		}

		if !trigger {
			if !spec.DiffDiscoveryEnabled() {
				continue
			}
			value, found, err := e.Provider.GetConfigValue(ctx, name)
			if err != nil {
				return fmt.Errorf("reading property %s: %w", name, err)
			}
			if !found || value != entry.Value {
				log.Info("property drift detected", "name", name, "readable", found)
				rep.Drifts = append(rep.Drifts, Drift{Service: svc.Name, Name: name})
			}
			continue
		}

		changed, err := e.Provider.UpsertConfig(ctx, name, entry.Value)
		if err != nil {
			if e.failsOnlyService(err) {
				e.failService(rep, svc.Name, err)
				return nil
			}
			return fmt.Errorf("upserting property %s: %w", name, err)
		}
		st := rep.Properties[name]
		existed := st.Exists
		st.Exists = true
		if changed && existed {
			st.UpdateCount++
			log.Info("updated property", "name", name, "key", key)
		} else if changed {
			log.Info("created property", "name", name, "key", key)
		}
		rep.Properties[name] = st
	}
	return nil
}

// failsOnlyService reports whether err fails the current service without
// aborting the converge.
func (e *Engine) failsOnlyService(err error) bool {
	if provider.IsOversize(err) {
		return true
	}
	return e.PermissionRetried && provider.IsPermission(err)
}

func (e *Engine) failService(rep *Report, service string, err error) {
	e.Log.Error(err, "service failed permanently", "service", service)
	rep.FailedServices[service] = err.Error()
}

func propertiesEnabled(spec *v1alpha1.SecretManagerConfigSpec) bool {
	return spec.Configs != nil && spec.Configs.Enabled
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
