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

// Package provider holds the cloud secret-store backends. Each backend
// exposes the same narrow surface over its vendor SDK: GCP Secret Manager
// with Parameter Manager, AWS Secrets Manager with SSM Parameter Store, and
// Azure Key Vault with App Configuration. Endpoints are overridable through
// the pactmode table so contract tests can route every backend at a mock.
package provider

import (
	"context"
	"errors"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/provider/pactmode"
)

// Payload ceilings documented by each vendor. Writes above the ceiling fail
// permanently before any network call.
const (
	MaxSecretBytesGCP   = 64 * 1024
	MaxSecretBytesAWS   = 64 * 1024
	MaxSecretBytesAzure = 25 * 1024
)

// Provider is the capability set the sync engine drives. A "secret" is a
// named container of ordered versions; the config surface targets the
// vendor's parameter or configuration store instead.
//
// Upsert operations report changed=false when the latest enabled value
// already equals the desired one, so redundant reconciliations write nothing.
// Disable and enable are idempotent. Delete is reserved for explicit purge
// paths and is never called from ordinary convergence.
type Provider interface {
	UpsertSecret(ctx context.Context, name, value string) (changed bool, err error)
	GetSecretValue(ctx context.Context, name string) (value string, found bool, err error)
	DisableSecret(ctx context.Context, name string) (changed bool, err error)
	EnableSecret(ctx context.Context, name string) (changed bool, err error)
	DeleteSecret(ctx context.Context, name string) error

	UpsertConfig(ctx context.Context, key, value string) (changed bool, err error)
	GetConfigValue(ctx context.Context, key string) (value string, found bool, err error)
	DeleteConfig(ctx context.Context, key string) error

	// Name identifies the backend in logs and status messages.
	Name() string
}

// Options carries the per-resource settings shared by all backends.
type Options struct {
	// Environment labels created provider resources.
	Environment string

	// Store selects the property surface: the vendor's parameter store
	// (default) or the secret store itself.
	Store v1alpha1.ConfigStore

	// ParameterPath prefixes parameter-store entries, e.g. "/apps/payments".
	ParameterPath string

	// AppConfigEndpoint overrides the Azure App Configuration endpoint.
	AppConfigEndpoint string

	// Credentials holds static credentials read from the spec's auth secret.
	// Each backend falls back to its ambient chain when empty.
	Credentials map[string][]byte
}

func (o Options) storeOrDefault() v1alpha1.ConfigStore {
	if o.Store == "" {
		return v1alpha1.ConfigStoreParameterManager
	}
	return o.Store
}

// ForSpec builds the backend selected by the spec's provider union. The
// union is matched exhaustively; an empty union is a programming error
// because validation rejects it before any I/O.
func ForSpec(ctx context.Context, spec *v1alpha1.SecretManagerConfigSpec, opts Options) (Provider, error) {
	if opts.Environment == "" {
		opts.Environment = spec.Secrets.Environment
	}
	if cfg := spec.Configs; cfg != nil {
		if opts.Store == "" {
			opts.Store = cfg.Store
		}
		if opts.ParameterPath == "" {
			opts.ParameterPath = cfg.ParameterPath
		}
		if opts.AppConfigEndpoint == "" {
			opts.AppConfigEndpoint = cfg.AppConfigEndpoint
		}
	}

	switch p := spec.Provider; {
	case p.GCP != nil:
		endpoint, _ := pactmode.EndpointFor(pactmode.GCP)
		return NewGCP(ctx, p.GCP, opts, endpoint)
	case p.AWS != nil:
		endpoint, _ := pactmode.EndpointFor(pactmode.AWS)
		return NewAWS(ctx, p.AWS, opts, endpoint)
	case p.Azure != nil:
		endpoint, _ := pactmode.EndpointFor(pactmode.Azure)
		return NewAzure(ctx, p.Azure, opts, endpoint)
	default:
		return nil, errors.New("provider union is empty; exactly one of gcp, aws, azure must be set")
	}
}
