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

/*
Package metrics provides the OpenTelemetry-based metrics exporter for the
secret manager operator. Instruments are bridged into the controller-runtime
Prometheus registry so the standard /metrics endpoint serves them.
*/
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	otelMeter metric.Meter

	// ReconcilesTotal counts finished reconciliations regardless of outcome.
	ReconcilesTotal metric.Int64Counter
	// ReconcileErrorsTotal counts reconciliations that ended in an error.
	ReconcileErrorsTotal metric.Int64Counter
	// ReconcileDurationSeconds observes wall-clock reconcile duration.
	ReconcileDurationSeconds metric.Float64Histogram

	// ArtifactFetchesTotal counts artifact downloads and clone refreshes.
	ArtifactFetchesTotal metric.Int64Counter
	// ArtifactFetchFailuresTotal counts failed artifact resolutions.
	ArtifactFetchFailuresTotal metric.Int64Counter

	// SopsDecryptsTotal counts sops subprocess invocations.
	SopsDecryptsTotal metric.Int64Counter
	// SopsDecryptFailuresTotal counts classified decryption failures.
	SopsDecryptFailuresTotal metric.Int64Counter

	// SyncOperationsTotal counts provider writes (upserts, disables, enables).
	SyncOperationsTotal metric.Int64Counter
	// SyncFailuresTotal counts per-service permanent sync failures.
	SyncFailuresTotal metric.Int64Counter
	// DriftDetectedTotal counts drift findings reported in diff mode.
	DriftDetectedTotal metric.Int64Counter
	// ProviderErrorsTotal counts provider call errors after classification.
	ProviderErrorsTotal metric.Int64Counter

	// SecretsSyncedGauge tracks provider-side secrets currently tracked as
	// existing, summed over all resources.
	SecretsSyncedGauge metric.Int64UpDownCounter
	// BackoffEntriesActive tracks resources currently holding backoff state.
	BackoffEntriesActive metric.Int64UpDownCounter
)

// InitOTLPExporter initializes the OTLP-to-Prometheus bridge.
func InitOTLPExporter(_ context.Context) (func(context.Context) error, error) {
	// Create a Prometheus exporter that bridges OTLP metrics to Prometheus
	// Configure it to use the controller-runtime registry.
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(metrics.Registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	// Create a meter provider with the Prometheus exporter.
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	// Get the meter from the new provider.
	otelMeter = provider.Meter("secret-manager-operator")

	// Register instruments in compact loops to keep complexity low.
	type cSpec struct {
		name string
		dest *metric.Int64Counter
	}
	type hSpec struct {
		name string
		dest *metric.Float64Histogram
	}
	type uSpec struct {
		name string
		dest *metric.Int64UpDownCounter
	}

	counters := []cSpec{
		{"smc_reconciles_total", &ReconcilesTotal},
		{"smc_reconcile_errors_total", &ReconcileErrorsTotal},
		{"smc_artifact_fetches_total", &ArtifactFetchesTotal},
		{"smc_artifact_fetch_failures_total", &ArtifactFetchFailuresTotal},
		{"smc_sops_decrypts_total", &SopsDecryptsTotal},
		{"smc_sops_decrypt_failures_total", &SopsDecryptFailuresTotal},
		{"smc_sync_operations_total", &SyncOperationsTotal},
		{"smc_sync_failures_total", &SyncFailuresTotal},
		{"smc_drift_detected_total", &DriftDetectedTotal},
		{"smc_provider_errors_total", &ProviderErrorsTotal},
	}
	for _, s := range counters {
		v, err := otelMeter.Int64Counter(s.name)
		if err != nil {
			return nil, err
		}
		*s.dest = v
	}

	hists := []hSpec{
		{"smc_reconcile_duration_seconds", &ReconcileDurationSeconds},
	}
	for _, s := range hists {
		v, err := otelMeter.Float64Histogram(s.name)
		if err != nil {
			return nil, err
		}
		*s.dest = v
	}

	upDowns := []uSpec{
		{"smc_secrets_synced", &SecretsSyncedGauge},
		{"smc_backoff_entries_active", &BackoffEntriesActive},
	}
	for _, s := range upDowns {
		v, err := otelMeter.Int64UpDownCounter(s.name)
		if err != nil {
			return nil, err
		}
		*s.dest = v
	}

	return func(_ context.Context) error {
		return nil
	}, nil
}
