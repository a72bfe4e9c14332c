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

// Package config holds the controller-level tunables read from the environment
// at startup. Spec-level knobs live on the SecretManagerConfig resource; this
// is only the process-wide surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default values for every tunable. Exposed for tests and documentation.
const (
	DefaultCacheDir              = "/tmp/smc"
	DefaultSopsSecretName        = "sops-gpg"
	DefaultWorkerCount           = 4
	DefaultErrorRequeueSeconds   = 60
	DefaultBackoffCapMinutes     = 10
	DefaultWatchRestartSeconds   = 5
	DefaultMinPullInterval       = 30 * time.Second
	DefaultMinReconcileInterval  = time.Minute
	DefaultReconcileTimeout      = 10 * time.Minute
	DefaultMaxSecretPayloadBytes = 64 * 1024
)

// Config is the process-wide controller configuration.
type Config struct {
	// CacheDir is the base directory for unpacked artifacts and clones.
	CacheDir string

	// SopsSecretName / SopsSecretNamespace locate the cluster GPG key secret.
	// An empty namespace means the controller's own namespace.
	SopsSecretName      string
	SopsSecretNamespace string

	// WorkerCount bounds concurrent reconciliations across resources.
	WorkerCount int

	// ErrorRequeueSeconds is the flat requeue used when the backoff registry
	// is bypassed (programmer-invariant recovery path).
	ErrorRequeueSeconds int

	// BackoffCapMinutes caps the Fibonacci retry schedule.
	BackoffCapMinutes int

	// WatchRestartSeconds is the base delay before re-establishing a broken
	// watch stream.
	WatchRestartSeconds int

	// MinPullInterval / MinReconcileInterval are the validation floors for the
	// spec-level duration fields.
	MinPullInterval      time.Duration
	MinReconcileInterval time.Duration

	// ReconcileTimeout is the soft deadline for a single reconciliation.
	ReconcileTimeout time.Duration

	// HotReloadConfigMap optionally names a ConfigMap whose changes re-apply
	// the reloadable subset ("namespace/name", empty disables).
	HotReloadConfigMap string

	// SopsBinary / KustomizeBinary / GitBinary allow overriding subprocess
	// paths, mainly for tests.
	SopsBinary      string
	KustomizeBinary string
	GitBinary       string
}

// Load reads configuration from environment variables, applying defaults and
// validating the result.
func Load() (*Config, error) {
	cfg := &Config{
		CacheDir:            os.Getenv("SMC_CACHE_DIR"),
		SopsSecretName:      os.Getenv("SMC_SOPS_SECRET_NAME"),
		SopsSecretNamespace: os.Getenv("SMC_SOPS_SECRET_NAMESPACE"),
		HotReloadConfigMap:  os.Getenv("SMC_HOT_RELOAD_CONFIGMAP"),
		SopsBinary:          os.Getenv("SMC_SOPS_BINARY"),
		KustomizeBinary:     os.Getenv("SMC_KUSTOMIZE_BINARY"),
		GitBinary:           os.Getenv("SMC_GIT_BINARY"),
	}

	// Defaults
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.SopsSecretName == "" {
		cfg.SopsSecretName = DefaultSopsSecretName
	}
	if cfg.SopsSecretNamespace == "" {
		cfg.SopsSecretNamespace = os.Getenv("POD_NAMESPACE")
	}
	if cfg.SopsBinary == "" {
		cfg.SopsBinary = "sops"
	}
	if cfg.KustomizeBinary == "" {
		cfg.KustomizeBinary = "kustomize"
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}

	var err error
	if cfg.WorkerCount, err = intFromEnv("SMC_WORKER_COUNT", DefaultWorkerCount); err != nil {
		return nil, err
	}
	if cfg.ErrorRequeueSeconds, err = intFromEnv("SMC_ERROR_REQUEUE_SECONDS", DefaultErrorRequeueSeconds); err != nil {
		return nil, err
	}
	if cfg.BackoffCapMinutes, err = intFromEnv("SMC_BACKOFF_CAP_MINUTES", DefaultBackoffCapMinutes); err != nil {
		return nil, err
	}
	if cfg.WatchRestartSeconds, err = intFromEnv("SMC_WATCH_RESTART_SECONDS", DefaultWatchRestartSeconds); err != nil {
		return nil, err
	}
	if cfg.MinPullInterval, err = durationFromEnv("SMC_MIN_PULL_INTERVAL", DefaultMinPullInterval); err != nil {
		return nil, err
	}
	if cfg.MinReconcileInterval, err = durationFromEnv("SMC_MIN_RECONCILE_INTERVAL", DefaultMinReconcileInterval); err != nil {
		return nil, err
	}
	if cfg.ReconcileTimeout, err = durationFromEnv("SMC_RECONCILE_TIMEOUT", DefaultReconcileTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the controller relies on.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("SMC_WORKER_COUNT must be >= 1, got %d", c.WorkerCount)
	}
	if c.BackoffCapMinutes < 1 {
		return fmt.Errorf("SMC_BACKOFF_CAP_MINUTES must be >= 1, got %d", c.BackoffCapMinutes)
	}
	if c.ErrorRequeueSeconds < 1 {
		return fmt.Errorf("SMC_ERROR_REQUEUE_SECONDS must be >= 1, got %d", c.ErrorRequeueSeconds)
	}
	if c.MinPullInterval <= 0 || c.MinReconcileInterval <= 0 {
		return fmt.Errorf("minimum intervals must be positive")
	}
	if c.ReconcileTimeout < c.MinReconcileInterval {
		return fmt.Errorf(
			"SMC_RECONCILE_TIMEOUT (%s) must not be below the minimum reconcile interval (%s)",
			c.ReconcileTimeout, c.MinReconcileInterval,
		)
	}
	return nil
}

// BackoffCap returns the retry schedule cap as a duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapMinutes) * time.Minute
}

// ErrorRequeue returns the flat error requeue as a duration.
func (c *Config) ErrorRequeue() time.Duration {
	return time.Duration(c.ErrorRequeueSeconds) * time.Second
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return v, nil
}
