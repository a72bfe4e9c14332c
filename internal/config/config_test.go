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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultCacheDir, cfg.CacheDir)
	assert.Equal(t, DefaultSopsSecretName, cfg.SopsSecretName)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultBackoffCapMinutes, cfg.BackoffCapMinutes)
	assert.Equal(t, "sops", cfg.SopsBinary)
	assert.Equal(t, "kustomize", cfg.KustomizeBinary)
	assert.Equal(t, "git", cfg.GitBinary)
	assert.Equal(t, DefaultMinPullInterval, cfg.MinPullInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SMC_CACHE_DIR", "/var/cache/smc")
	t.Setenv("SMC_WORKER_COUNT", "8")
	t.Setenv("SMC_BACKOFF_CAP_MINUTES", "60")
	t.Setenv("SMC_MIN_PULL_INTERVAL", "45s")
	t.Setenv("SMC_SOPS_SECRET_NAME", "team-sops-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/smc", cfg.CacheDir)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 60*time.Minute, cfg.BackoffCap())
	assert.Equal(t, 45*time.Second, cfg.MinPullInterval)
	assert.Equal(t, "team-sops-key", cfg.SopsSecretName)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SMC_WORKER_COUNT", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMC_WORKER_COUNT")
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
		{"zero backoff cap", func(c *Config) { c.BackoffCapMinutes = 0 }},
		{"zero error requeue", func(c *Config) { c.ErrorRequeueSeconds = 0 }},
		{"timeout below min interval", func(c *Config) { c.ReconcileTimeout = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSopsNamespaceFallsBackToPodNamespace(t *testing.T) {
	t.Setenv("POD_NAMESPACE", "smc-system")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smc-system", cfg.SopsSecretNamespace)
}
