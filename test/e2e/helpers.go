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
Package e2e exercises a deployed secret-manager-operator against a Kind
cluster: CRD installation, controller rollout, webhook admission and the
status surface of SecretManagerConfig resources.
*/
package e2e

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:staticcheck // Ginkgo standard practice
	. "github.com/onsi/gomega"    //nolint:staticcheck // Ginkgo standard practice
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// namespace where the project is deployed in.
const namespace = "smc-system"

// run executes the command and returns combined output, logging invocation
// and output to the Ginkgo writer.
func run(cmd *exec.Cmd) (string, error) {
	dir, _ := os.Getwd()
	cmd.Dir = dir

	command := strings.Join(cmd.Args, " ")
	_, _ = fmt.Fprintf(GinkgoWriter, "running: %s\n", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s failed with error: (%v) %s", command, err, string(output))
	}
	return string(output), nil
}

// kubectl runs one kubectl invocation.
func kubectl(args ...string) (string, error) {
	return run(exec.Command("kubectl", args...))
}

// kubectlApply applies a manifest provided as a string.
func kubectlApply(manifest string) (string, error) {
	cmd := exec.Command("kubectl", "apply", "-f", "-")
	cmd.Stdin = strings.NewReader(manifest)
	return run(cmd)
}

// kubectlGetJSONPath reads a single jsonpath expression from a resource.
func kubectlGetJSONPath(kind, ns, name, path string) (string, error) {
	out, err := kubectl("get", kind, name, "-n", ns,
		"-o", fmt.Sprintf("jsonpath={%s}", path))
	return strings.TrimSpace(out), err
}

// promAPI is the Prometheus API client instance, set up lazily when a test
// needs metric assertions.
var promAPI promv1.API //nolint:gochecknoglobals // Shared across test functions

// prometheusURL points at the port-forwarded Prometheus UI. Empty disables
// metric assertions.
func prometheusURL() string {
	return os.Getenv("PROMETHEUS_URL")
}

// setupPrometheusClient initializes the Prometheus API client.
func setupPrometheusClient() {
	By("setting up Prometheus API client")
	client, err := api.NewClient(api.Config{
		Address: prometheusURL(),
	})
	Expect(err).NotTo(HaveOccurred(), "Failed to create Prometheus client")
	promAPI = promv1.NewAPI(client)
}

// queryPrometheus executes a PromQL query and returns the first scalar
// value, or 0 if no results were found.
func queryPrometheus(query string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, _, err := promAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query failed: %w", err)
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected result type: %T", result)
	}
}

// waitForMetric waits for a Prometheus metric query to satisfy a condition.
func waitForMetric(query string, condition func(float64) bool, description string) {
	By(fmt.Sprintf("waiting for metric: %s", description))
	Eventually(func(g Gomega) {
		value, err := queryPrometheus(query)
		g.Expect(err).NotTo(HaveOccurred(), "Failed to query Prometheus")
		g.Expect(condition(value)).To(BeTrue(),
			fmt.Sprintf("%s (query: %s, value: %.2f)", description, query, value))
	}, 30*time.Second, 2*time.Second).Should(Succeed())
}
