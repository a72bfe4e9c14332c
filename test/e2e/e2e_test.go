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

package e2e

import (
	"fmt"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testNamespace = "smc-e2e"

var _ = Describe("secret-manager-operator", Ordered, func() {
	BeforeAll(func() {
		By("creating the test namespace")
		_, _ = kubectl("create", "ns", testNamespace)

		By("deploying the operator")
		_, err := run(exec.Command("make", "deploy", fmt.Sprintf("IMG=%s", projectImage)))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		_, _ = kubectl("delete", "ns", testNamespace, "--ignore-not-found")
	})

	It("should have the CRD established", func() {
		Eventually(func(g Gomega) {
			out, err := kubectl("get", "crd", "secretmanagerconfigs.configbutler.ai",
				"-o", "jsonpath={.status.conditions[?(@.type=='Established')].status}")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(out).To(Equal("True"))
		}, time.Minute, 2*time.Second).Should(Succeed())
	})

	It("should run the controller manager", func() {
		Eventually(func(g Gomega) {
			out, err := kubectl("get", "pods", "-n", namespace,
				"-l", "control-plane=controller-manager",
				"-o", "jsonpath={.items[0].status.phase}")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(out).To(Equal("Running"))
		}, 2*time.Minute, 2*time.Second).Should(Succeed())
	})

	It("should serve metrics on the metrics port", func() {
		Eventually(func(g Gomega) {
			out, err := kubectl("exec", "-n", namespace, "deploy/smc-controller-manager",
				"--", "wget", "-qO-", "http://localhost:8080/metrics")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(out).To(ContainSubstring("smc_reconciles_total"))
		}, 2*time.Minute, 5*time.Second).Should(Succeed())
	})

	It("should report reconcile activity to Prometheus", func() {
		if prometheusURL() == "" {
			Skip("PROMETHEUS_URL not set, skipping Prometheus metric assertions")
		}
		setupPrometheusClient()

		waitForMetric(
			`sum(smc_reconciles_total)`,
			func(v float64) bool { return v > 0 },
			"at least one reconcile recorded",
		)
		waitForMetric(
			`sum(smc_reconcile_errors_total) or vector(0)`,
			func(v float64) bool { return v == 0 },
			"no reconcile errors recorded",
		)
	})

	It("should reject an invalid SecretManagerConfig at admission", func() {
		manifest := fmt.Sprintf(`apiVersion: configbutler.ai/v1alpha1
kind: SecretManagerConfig
metadata:
  name: invalid-no-provider
  namespace: %s
spec:
  sourceRef:
    kind: GitRepository
    name: app-repo
  provider: {}
  secrets:
    environment: dev
`, testNamespace)

		out, err := kubectlApply(manifest)
		Expect(err).To(HaveOccurred())
		Expect(out).To(ContainSubstring("provider"))
	})

	It("should hold a config in Pending while its source is missing", func() {
		manifest := fmt.Sprintf(`apiVersion: configbutler.ai/v1alpha1
kind: SecretManagerConfig
metadata:
  name: waiting-for-source
  namespace: %s
spec:
  sourceRef:
    kind: GitRepository
    name: no-such-repo
  provider:
    gcp:
      projectId: acme-e2e
      location: us-central1
  secrets:
    environment: dev
`, testNamespace)

		_, err := kubectlApply(manifest)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func(g Gomega) {
			phase, err := kubectlGetJSONPath("secretmanagerconfig", testNamespace,
				"waiting-for-source", ".status.phase")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(phase).To(Equal("Pending"))

			reason, err := kubectlGetJSONPath("secretmanagerconfig", testNamespace,
				"waiting-for-source", ".status.conditions[?(@.type=='Ready')].reason")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(reason).To(Equal("AwaitingSource"))
		}, 2*time.Minute, 5*time.Second).Should(Succeed())
	})

	It("should progress once the GitRepository appears", func() {
		manifest := fmt.Sprintf(`apiVersion: source.toolkit.fluxcd.io/v1
kind: GitRepository
metadata:
  name: no-such-repo
  namespace: %s
spec:
  interval: 1m
  url: https://example.invalid/repo.git
`, testNamespace)

		_, err := kubectlApply(manifest)
		Expect(err).NotTo(HaveOccurred())

		// The repo never publishes an artifact (the URL is unreachable), so
		// the config leaves AwaitingSource and reports the missing artifact.
		Eventually(func(g Gomega) {
			reason, err := kubectlGetJSONPath("secretmanagerconfig", testNamespace,
				"waiting-for-source", ".status.conditions[?(@.type=='Ready')].reason")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(reason).NotTo(Equal("AwaitingSource"))
		}, 3*time.Minute, 5*time.Second).Should(Succeed())
	})

	It("should honor spec.suspend", func() {
		_, err := kubectl("patch", "secretmanagerconfig", "waiting-for-source",
			"-n", testNamespace, "--type=merge",
			"-p", `{"spec":{"suspend":true}}`)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func(g Gomega) {
			status, err := kubectlGetJSONPath("secretmanagerconfig", testNamespace,
				"waiting-for-source", ".status.conditions[?(@.type=='Suspended')].status")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(status).To(Equal("True"))
		}, time.Minute, 5*time.Second).Should(Succeed())
	})
})
