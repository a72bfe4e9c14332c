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

// Package pactmode routes provider backends at mock endpoints during
// contract testing. The override table is initialized once at startup from
// PACT_* environment variables and consulted before any SDK client is built.
// Endpoints pointing at vendor production domains are refused so test
// traffic can never leak into a real cloud account.
package pactmode

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// ProviderID keys the override table.
type ProviderID string

const (
	GCP   ProviderID = "gcp"
	AWS   ProviderID = "aws"
	Azure ProviderID = "azure"

	// AzureAppConfig is tracked separately because App Configuration uses
	// its own endpoint beside the vault.
	AzureAppConfig ProviderID = "azure-appconfig"
)

// Override is one provider's mock routing.
type Override struct {
	// Endpoint replaces the vendor production endpoint.
	Endpoint string

	// Env is exported into the process while the override is active.
	Env map[string]string

	// RequiresEnv marks SDKs that read configuration from the environment
	// during setup rather than through client options.
	RequiresEnv bool

	// AsyncEnvRead marks SDKs that consult the environment again while
	// finishing client construction lazily; their variables must stay
	// exported for the process lifetime.
	AsyncEnvRead bool
}

// productionFragments are vendor domains no mock endpoint may contain.
var productionFragments = []string{
	"googleapis.com",
	"amazonaws.com",
	"vault.azure.net",
	"azconfig.io",
}

var (
	mu          sync.Mutex
	initialized bool
	enabled     bool
	table       map[ProviderID]Override
	exported    []string
)

// Init reads the PACT_* environment and populates the override table. It is
// called once from main before any provider is constructed; a second call
// without an intervening Reset fails.
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return fmt.Errorf("pact mode already initialized")
	}
	initialized = true

	mode := strings.ToLower(os.Getenv("PACT_MODE"))
	if mode != "1" && mode != "true" {
		enabled = false
		return nil
	}
	enabled = true
	table = make(map[ProviderID]Override)

	if ep := os.Getenv("PACT_GCP_ENDPOINT"); ep != "" {
		if err := refuseProduction(ep); err != nil {
			return err
		}
		table[GCP] = Override{Endpoint: ep}
	}

	if ep := os.Getenv("PACT_AWS_ENDPOINT"); ep != "" {
		if err := refuseProduction(ep); err != nil {
			return err
		}
		table[AWS] = Override{
			Endpoint: ep,
			Env: map[string]string{
				// The default chain must not probe IMDS against a mock.
				"AWS_EC2_METADATA_DISABLED": "true",
			},
			RequiresEnv: true,
		}
	}

	if ep := os.Getenv("PACT_AZURE_ENDPOINT"); ep != "" {
		if err := refuseProduction(ep); err != nil {
			return err
		}
		table[Azure] = Override{Endpoint: ep, AsyncEnvRead: true}

		appConfig := os.Getenv("PACT_AZURE_APPCONFIG_ENDPOINT")
		if appConfig == "" {
			appConfig = ep
		}
		if err := refuseProduction(appConfig); err != nil {
			return err
		}
		table[AzureAppConfig] = Override{Endpoint: appConfig, AsyncEnvRead: true}
	}

	for _, ov := range table {
		if !ov.RequiresEnv {
			continue
		}
		for k, v := range ov.Env {
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("exporting %s: %w", k, err)
			}
			exported = append(exported, k)
		}
	}
	return nil
}

// Enabled reports whether mock routing is active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// EndpointFor returns the mock endpoint for id, or ok=false when the
// provider runs against production.
func EndpointFor(id ProviderID) (string, bool) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return "", false
	}
	ov, ok := table[id]
	if !ok {
		return "", false
	}
	return ov.Endpoint, true
}

// OverrideFor returns the full override entry for id.
func OverrideFor(id ProviderID) (Override, bool) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return Override{}, false
	}
	ov, ok := table[id]
	return ov, ok
}

// Reset clears the table and unexports its variables. Test teardown only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	for _, k := range exported {
		os.Unsetenv(k)
	}
	exported = nil
	table = nil
	enabled = false
	initialized = false
}

func refuseProduction(endpoint string) error {
	for _, fragment := range productionFragments {
		if strings.Contains(endpoint, fragment) {
			return fmt.Errorf("pact endpoint %q targets production domain %q", endpoint, fragment)
		}
	}
	return nil
}
