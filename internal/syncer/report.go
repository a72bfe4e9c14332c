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

package syncer

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
)

// Outcome summarizes a converge run across all services.
type Outcome string

const (
	// Succeeded means every service applied cleanly.
	Succeeded Outcome = "Succeeded"
	// PartialFailure means at least one service failed and at least one succeeded.
	PartialFailure Outcome = "PartialFailure"
	// Failed means every service failed.
	Failed Outcome = "Failed"
)

// Drift is a provider value that no longer matches the desired value.
// Drifts are only discovered while triggerUpdate is off.
type Drift struct {
	// Service is the service the key was extracted from.
	Service string
	// Name is the provider-side resource name.
	Name string
}

// Report carries the converge result the reconciler folds into status.
//
// The state maps start as copies of the prior sync state and entries are
// never removed, only updated: a name stays tracked through disables and
// through disappearing from the source. When Converge returns an error the
// report still holds every state change applied before the abort.
type Report struct {
	Outcome Outcome

	Secrets    map[string]v1alpha1.ResourceSyncState
	Properties map[string]v1alpha1.ResourceSyncState

	Drifts []Drift

	// FailedServices maps a service name to the message of the permanent
	// error that failed it.
	FailedServices map[string]string
}

// SecretsSynced counts secret entries that exist provider-side.
func (r *Report) SecretsSynced() int {
	n := 0
	for _, st := range r.Secrets {
		if st.Exists {
			n++
		}
	}
	return n
}

// AggregateError folds the per-service failures into one error, nil when
// every service succeeded.
func (r *Report) AggregateError() error {
	if len(r.FailedServices) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.FailedServices))
	for name := range r.FailedServices {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs *multierror.Error
	for _, name := range names {
		errs = multierror.Append(errs, fmt.Errorf("service %s: %s", name, r.FailedServices[name]))
	}
	return errs.ErrorOrNil()
}

func newReport(prior v1alpha1.SyncState) *Report {
	rep := &Report{
		Secrets:        make(map[string]v1alpha1.ResourceSyncState, len(prior.Secrets)),
		Properties:     make(map[string]v1alpha1.ResourceSyncState, len(prior.Properties)),
		FailedServices: map[string]string{},
	}
	for name, st := range prior.Secrets {
		rep.Secrets[name] = st
	}
	for name, st := range prior.Properties {
		rep.Properties[name] = st
	}
	return rep
}

func (r *Report) finish(total int) {
	sort.Slice(r.Drifts, func(i, j int) bool {
		if r.Drifts[i].Service != r.Drifts[j].Service {
			return r.Drifts[i].Service < r.Drifts[j].Service
		}
		return r.Drifts[i].Name < r.Drifts[j].Name
	})

	switch failed := len(r.FailedServices); {
	case failed == 0:
		r.Outcome = Succeeded
	case failed < total:
		r.Outcome = PartialFailure
	default:
		r.Outcome = Failed
	}
}
