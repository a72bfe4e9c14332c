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

package controller

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/event"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/artifact"
	"github.com/ConfigButler/secret-manager-operator/internal/backoff"
	"github.com/ConfigButler/secret-manager-operator/internal/config"
	"github.com/ConfigButler/secret-manager-operator/internal/extract"
	"github.com/ConfigButler/secret-manager-operator/internal/provider"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
)

func controllerScheme() *runtime.Scheme {
	s := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(s))
	utilruntime.Must(v1alpha1.AddToScheme(s))
	utilruntime.Must(sourcev1.AddToScheme(s))
	return s
}

type stubResolver struct {
	art      artifact.Artifact
	err      error
	calls    int
	lastOpts artifact.Options
}

func (s *stubResolver) Resolve(_ context.Context, _ *v1alpha1.SecretManagerConfig, opts artifact.Options) (artifact.Artifact, error) {
	s.calls++
	s.lastOpts = opts
	if s.err != nil {
		return artifact.Artifact{}, s.err
	}
	return s.art, nil
}

type stubExtractor struct {
	content extract.Content
	err     error
	used    bool
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ v1alpha1.SecretsSpec) (extract.Content, error) {
	return s.content, s.err
}

func (s *stubExtractor) DecryptionUsed() bool { return s.used }

type memSecret struct {
	value    string
	disabled bool
}

// memProvider is an in-memory backend with the same changed/err contract as
// the real ones.
type memProvider struct {
	secrets   map[string]*memSecret
	configs   map[string]string
	upsertErr map[string]error
}

func newMemProvider() *memProvider {
	return &memProvider{
		secrets:   map[string]*memSecret{},
		configs:   map[string]string{},
		upsertErr: map[string]error{},
	}
}

func (p *memProvider) UpsertSecret(_ context.Context, name, value string) (bool, error) {
	if err, ok := p.upsertErr[name]; ok {
		return false, err
	}
	if s, ok := p.secrets[name]; ok && !s.disabled && s.value == value {
		return false, nil
	}
	p.secrets[name] = &memSecret{value: value}
	return true, nil
}

func (p *memProvider) GetSecretValue(_ context.Context, name string) (string, bool, error) {
	s, ok := p.secrets[name]
	if !ok || s.disabled {
		return "", false, nil
	}
	return s.value, true, nil
}

func (p *memProvider) DisableSecret(_ context.Context, name string) (bool, error) {
	s, ok := p.secrets[name]
	if !ok || s.disabled {
		return false, nil
	}
	s.disabled = true
	return true, nil
}

func (p *memProvider) EnableSecret(_ context.Context, name string) (bool, error) {
	s, ok := p.secrets[name]
	if !ok || !s.disabled {
		return false, nil
	}
	s.disabled = false
	return true, nil
}

func (p *memProvider) DeleteSecret(_ context.Context, name string) error {
	delete(p.secrets, name)
	return nil
}

func (p *memProvider) UpsertConfig(_ context.Context, key, value string) (bool, error) {
	if v, ok := p.configs[key]; ok && v == value {
		return false, nil
	}
	p.configs[key] = value
	return true, nil
}

func (p *memProvider) GetConfigValue(_ context.Context, key string) (string, bool, error) {
	v, ok := p.configs[key]
	return v, ok, nil
}

func (p *memProvider) DeleteConfig(_ context.Context, key string) error {
	delete(p.configs, key)
	return nil
}

func (p *memProvider) Name() string { return "mem" }

type fixture struct {
	client    client.Client
	rec       *SecretManagerConfigReconciler
	resolver  *stubResolver
	extractor *stubExtractor
	provider  *memProvider
	recorder  *record.FakeRecorder
}

func newFixture(objs ...client.Object) *fixture {
	s := controllerScheme()
	c := fake.NewClientBuilder().
		WithScheme(s).
		WithObjects(objs...).
		WithStatusSubresource(&v1alpha1.SecretManagerConfig{}).
		Build()

	f := &fixture{
		client:    c,
		resolver:  &stubResolver{art: artifact.Artifact{LocalPath: "/cache/repo", Revision: "main@sha1:abc123"}},
		extractor: &stubExtractor{},
		provider:  newMemProvider(),
		recorder:  record.NewFakeRecorder(64),
	}

	cfg := &config.Config{
		SopsSecretName:       config.DefaultSopsSecretName,
		WorkerCount:          1,
		BackoffCapMinutes:    config.DefaultBackoffCapMinutes,
		MinPullInterval:      config.DefaultMinPullInterval,
		MinReconcileInterval: config.DefaultMinReconcileInterval,
	}
	f.rec = &SecretManagerConfigReconciler{
		Client:   c,
		Scheme:   s,
		Recorder: f.recorder,
		Config:   cfg,
		Backoff:  backoff.NewRegistry(cfg.BackoffCap()),
		Snapshot: sops.NewKeySnapshot("smc-system"),
		Resolver: f.resolver,
		NewProvider: func(_ context.Context, _ *v1alpha1.SecretManagerConfigSpec, _ provider.Options) (provider.Provider, error) {
			return f.provider, nil
		},
		NewExtractor: func(_ []byte) ContentExtractor {
			return f.extractor
		},
	}
	return f
}

func (f *fixture) reconcile(smc *v1alpha1.SecretManagerConfig) (ctrl.Result, error) {
	return f.rec.Reconcile(context.Background(), ctrl.Request{
		NamespacedName: types.NamespacedName{Namespace: smc.Namespace, Name: smc.Name},
	})
}

func (f *fixture) get(smc *v1alpha1.SecretManagerConfig) *v1alpha1.SecretManagerConfig {
	var out v1alpha1.SecretManagerConfig
	Expect(f.client.Get(context.Background(),
		types.NamespacedName{Namespace: smc.Namespace, Name: smc.Name}, &out)).To(Succeed())
	return &out
}

func newSMC(name string) *v1alpha1.SecretManagerConfig {
	return &v1alpha1.SecretManagerConfig{
		ObjectMeta: metav1.ObjectMeta{
			Name:       name,
			Namespace:  "team-a",
			Generation: 1,
		},
		Spec: v1alpha1.SecretManagerConfigSpec{
			SourceRef: v1alpha1.SourceReference{
				Kind: v1alpha1.SourceKindGitRepository,
				Name: "app-repo",
			},
			Provider: v1alpha1.ProviderConfig{
				GCP: &v1alpha1.GCPProvider{ProjectID: "acme-prod", Location: "us-central1"},
			},
			Secrets:                   v1alpha1.SecretsSpec{Environment: "dev"},
			GitRepositoryPullInterval: "5m",
			ReconcileInterval:         "10m",
		},
	}
}

func singleService(secrets map[string]extract.Entry) extract.Content {
	return extract.Content{Services: []extract.ServiceContent{{
		Name:    extract.DefaultService,
		Secrets: secrets,
	}}}
}

func condition(smc *v1alpha1.SecretManagerConfig, condType string) *metav1.Condition {
	for i := range smc.Status.Conditions {
		if smc.Status.Conditions[i].Type == condType {
			return &smc.Status.Conditions[i]
		}
	}
	return nil
}

var _ = Describe("SecretManagerConfig Controller", func() {
	Context("successful convergence", func() {
		It("syncs extracted secrets and reaches Ready", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequeueAfter).To(Equal(10 * time.Minute))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhaseReady))
			Expect(got.Status.ObservedGeneration).To(Equal(int64(1)))
			Expect(got.Status.SecretsSynced).To(Equal(1))
			Expect(got.Status.Sync.Secrets).To(HaveKey("API_KEY"))
			Expect(got.Status.Sync.Secrets["API_KEY"].Exists).To(BeTrue())
			// The initial create does not count as an update.
			Expect(got.Status.Sync.Secrets["API_KEY"].UpdateCount).To(BeZero())

			ready := condition(got, ConditionTypeReady)
			Expect(ready).NotTo(BeNil())
			Expect(ready.Status).To(Equal(metav1.ConditionTrue))
			Expect(ready.Reason).To(Equal(ReasonReconcileSucceeded))

			resolved := condition(got, ConditionTypeArtifactResolved)
			Expect(resolved).NotTo(BeNil())
			Expect(resolved.Status).To(Equal(metav1.ConditionTrue))
			Expect(resolved.Message).To(ContainSubstring("main@sha1:abc123"))

			Expect(got.Status.DecryptionStatus).To(Equal(v1alpha1.DecryptionNotApplicable))

			Expect(f.provider.secrets).To(HaveKey("API_KEY"))
			Expect(f.provider.secrets["API_KEY"].value).To(Equal("s3cr3t"))
		})

		It("counts value changes but not the create or unchanged writes", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			got := f.get(smc)
			Expect(got.Status.Sync.Secrets["API_KEY"].UpdateCount).To(BeZero())

			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "rotated"},
			})
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			got = f.get(smc)
			Expect(got.Status.Sync.Secrets["API_KEY"].UpdateCount).To(Equal(int64(1)))
			Expect(f.provider.secrets["API_KEY"].value).To(Equal("rotated"))
		})

		It("records decryption success when encrypted files were present", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})
			f.extractor.used = true

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			got := f.get(smc)
			Expect(got.Status.DecryptionStatus).To(Equal(v1alpha1.DecryptionSuccess))
			dec := condition(got, ConditionTypeDecryption)
			Expect(dec).NotTo(BeNil())
			Expect(dec.Status).To(Equal(metav1.ConditionTrue))
		})

		It("passes suspendGitPulls and the pull interval to the resolver", func() {
			smc := newSMC("web")
			smc.Spec.SuspendGitPulls = true
			f := newFixture(smc)
			f.extractor.content = extract.Content{}

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.resolver.calls).To(Equal(1))
			Expect(f.resolver.lastOpts.SkipRefresh).To(BeTrue())
			Expect(f.resolver.lastOpts.PullInterval).To(Equal(5 * time.Minute))
		})
	})

	Context("disable and re-enable", func() {
		It("disables a secret commented out in the source and re-enables it later", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			// Key is commented out in the next commit.
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "", Disabled: true},
			})
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.provider.secrets["API_KEY"].disabled).To(BeTrue())

			got := f.get(smc)
			Expect(got.Status.Sync.Secrets).To(HaveKey("API_KEY"))
			Expect(got.Status.Sync.Secrets["API_KEY"].UpdateCount).To(BeZero())

			// Uncommented again with the same value: enable, no new version.
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.provider.secrets["API_KEY"].disabled).To(BeFalse())

			got = f.get(smc)
			Expect(got.Status.Sync.Secrets["API_KEY"].UpdateCount).To(BeZero())
		})

		It("disables secrets absent from the source without deleting them", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
				"DB_PASS": {Value: "hunter2"},
			})

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.provider.secrets).To(HaveKey("DB_PASS"))
			Expect(f.provider.secrets["DB_PASS"].disabled).To(BeTrue())

			got := f.get(smc)
			Expect(got.Status.Sync.Secrets).To(HaveKey("DB_PASS"))
		})
	})

	Context("partial and total failure", func() {
		It("isolates an oversize value to its service", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = extract.Content{Services: []extract.ServiceContent{
				{Name: "billing", Secrets: map[string]extract.Entry{"API_KEY": {Value: "huge"}}},
				{Name: "payments", Secrets: map[string]extract.Entry{"API_KEY": {Value: "ok"}}},
			}}
			f.provider.upsertErr["billing-API_KEY"] = &provider.OversizeError{
				Name: "billing-API_KEY", Size: 70000, Limit: provider.MaxSecretBytesGCP,
			}

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RequeueAfter).To(Equal(10 * time.Minute))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhasePartialFailure))
			Expect(got.Status.ObservedGeneration).To(Equal(int64(1)))
			Expect(f.provider.secrets).To(HaveKey("payments-API_KEY"))
			Expect(f.provider.secrets).NotTo(HaveKey("billing-API_KEY"))

			ready := condition(got, ConditionTypeReady)
			Expect(ready.Status).To(Equal(metav1.ConditionFalse))
			Expect(ready.Reason).To(Equal(ReasonPartialFailure))
		})

		It("backs off once for a forbidden service, then fails only that service", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = extract.Content{Services: []extract.ServiceContent{
				{Name: "billing", Secrets: map[string]extract.Entry{"API_KEY": {Value: "v"}}},
				{Name: "payments", Secrets: map[string]extract.Entry{"API_KEY": {Value: "ok"}}},
			}}
			f.provider.upsertErr["billing-API_KEY"] = &provider.PermissionError{
				Op: "writing", Name: "billing-API_KEY",
			}

			// First hit retries transiently; IAM grants can lag.
			first, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.RequeueAfter).To(Equal(time.Minute))
			Expect(f.get(smc).Status.Phase).To(Equal(v1alpha1.PhaseFailed))

			// Still forbidden after the backoff: only billing fails.
			second, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.RequeueAfter).To(Equal(10 * time.Minute))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhasePartialFailure))
			Expect(got.Status.Description).To(ContainSubstring("billing"))
			Expect(got.Status.Description).To(ContainSubstring("billing-API_KEY"))
			Expect(f.provider.secrets).To(HaveKey("payments-API_KEY"))
			Expect(f.provider.secrets).NotTo(HaveKey("billing-API_KEY"))
		})

		It("stops without a timer when every service fails permanently", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "huge"},
			})
			f.provider.upsertErr["API_KEY"] = &provider.OversizeError{
				Name: "API_KEY", Size: 70000, Limit: provider.MaxSecretBytesGCP,
			}

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhaseFailed))
			Expect(got.Status.ObservedGeneration).To(BeZero())
		})
	})

	Context("error scheduling", func() {
		It("waits for a missing source without arming a timer", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.resolver.err = &artifact.SourceNotFoundError{
				Kind: v1alpha1.SourceKindGitRepository, Name: "app-repo", Namespace: "team-a",
			}

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhasePending))
			ready := condition(got, ConditionTypeReady)
			Expect(ready.Reason).To(Equal(ReasonAwaitingSource))
		})

		It("waits for the SOPS key without arming a timer", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.extractor.err = &sops.DecryptError{Class: sops.ClassKeyNotFound}

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhasePending))
			ready := condition(got, ConditionTypeReady)
			Expect(ready.Reason).To(Equal(ReasonAwaitingSopsKey))
			Expect(got.Status.SopsKeyAvailable).NotTo(BeNil())
			Expect(*got.Status.SopsKeyAvailable).To(BeFalse())
		})

		It("mirrors an available SOPS key into status", func() {
			smc := newSMC("web")
			key := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: config.DefaultSopsSecretName, Namespace: "team-a"},
				Data:       map[string][]byte{"sops.asc": []byte("armored")},
			}
			f := newFixture(smc, key)
			f.extractor.content = extract.Content{}

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			got := f.get(smc)
			Expect(got.Status.SopsKeyAvailable).NotTo(BeNil())
			Expect(*got.Status.SopsKeyAvailable).To(BeTrue())
			Expect(got.Status.SopsKeyNamespace).To(Equal("team-a"))
		})

		It("fails permanently on an invalid spec", func() {
			smc := newSMC("web")
			smc.Spec.Provider = v1alpha1.ProviderConfig{}
			f := newFixture(smc)

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhaseFailed))
			ready := condition(got, ConditionTypeReady)
			Expect(ready.Reason).To(Equal(ReasonInvalidSpec))
		})

		It("retries transient artifact failures with growing backoff", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.resolver.err = &artifact.ArtifactMissingError{Reason: "download interrupted"}

			first, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.RequeueAfter).To(Equal(time.Minute))

			second, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.RequeueAfter).To(Equal(time.Minute))

			third, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(third.RequeueAfter).To(Equal(2 * time.Minute))

			got := f.get(smc)
			Expect(got.Status.Phase).To(Equal(v1alpha1.PhaseFailed))
		})

		It("resets the backoff after a success", func() {
			smc := newSMC("web")
			f := newFixture(smc)
			f.resolver.err = &artifact.ArtifactMissingError{Reason: "download interrupted"}

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())

			f.resolver.err = nil
			f.extractor.content = extract.Content{}
			_, err = f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.rec.Backoff.Len()).To(BeZero())
		})
	})

	Context("suspend", func() {
		It("does nothing while suspended", func() {
			smc := newSMC("web")
			smc.Spec.Suspend = true
			f := newFixture(smc)

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))
			Expect(f.resolver.calls).To(BeZero())

			got := f.get(smc)
			suspended := condition(got, "Suspended")
			Expect(suspended).NotTo(BeNil())
			Expect(suspended.Status).To(Equal(metav1.ConditionTrue))
		})
	})

	Context("diff discovery", func() {
		It("reports drift without writing when triggerUpdate is off", func() {
			smc := newSMC("web")
			off := false
			on := true
			smc.Spec.TriggerUpdate = &off
			smc.Spec.DiffDiscovery = &on
			f := newFixture(smc)
			f.extractor.content = singleService(map[string]extract.Entry{
				"API_KEY": {Value: "s3cr3t"},
			})

			_, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.provider.secrets).To(BeEmpty())

			Eventually(f.recorder.Events).Should(Receive(ContainSubstring("DriftDetected")))
		})
	})

	Context("deletion", func() {
		It("drops backoff state for a deleted resource and leaves the provider alone", func() {
			smc := newSMC("web")
			f := newFixture() // object never stored
			f.rec.Backoff.Next("team-a/web")

			res, err := f.reconcile(smc)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(ctrl.Result{}))
			Expect(f.rec.Backoff.Len()).To(BeZero())
		})
	})
})

var _ = Describe("watch predicates", func() {
	newObj := func(gen int64, annotations map[string]string) *v1alpha1.SecretManagerConfig {
		return &v1alpha1.SecretManagerConfig{ObjectMeta: metav1.ObjectMeta{
			Name: "web", Namespace: "team-a", Generation: gen, Annotations: annotations,
		}}
	}

	It("passes generation changes", func() {
		p := annotationOrGenerationChanged{}
		Expect(p.Update(event.UpdateEvent{
			ObjectOld: newObj(1, nil),
			ObjectNew: newObj(2, nil),
		})).To(BeTrue())
	})

	It("passes reconcile annotation changes", func() {
		p := annotationOrGenerationChanged{}
		Expect(p.Update(event.UpdateEvent{
			ObjectOld: newObj(1, nil),
			ObjectNew: newObj(1, map[string]string{ReconcileAnnotation: "1724577600"}),
		})).To(BeTrue())
	})

	It("filters status-only updates", func() {
		p := annotationOrGenerationChanged{}
		Expect(p.Update(event.UpdateEvent{
			ObjectOld: newObj(1, nil),
			ObjectNew: newObj(1, nil),
		})).To(BeFalse())
	})

})

var _ = Describe("source mapping", func() {
	It("maps a GitRepository event to the configs referencing it", func() {
		smc := newSMC("web")
		other := newSMC("other")
		other.Spec.SourceRef.Name = "different-repo"

		s := controllerScheme()
		c := fake.NewClientBuilder().
			WithScheme(s).
			WithObjects(smc, other).
			WithIndex(&v1alpha1.SecretManagerConfig{}, sourceRefIndexKey, func(obj client.Object) []string {
				cfg := obj.(*v1alpha1.SecretManagerConfig)
				return []string{sourceRefKey(cfg.Spec.SourceRef.Kind, cfg.SourceNamespace(), cfg.Spec.SourceRef.Name)}
			}).
			Build()

		r := &SecretManagerConfigReconciler{Client: c}
		repo := &sourcev1.GitRepository{ObjectMeta: metav1.ObjectMeta{Name: "app-repo", Namespace: "team-a"}}

		reqs := r.gitRepositoryToConfigs(context.Background(), repo)
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Name).To(Equal("web"))
		Expect(reqs[0].Namespace).To(Equal("team-a"))
	})

	It("wakes every config in the namespace of a changed key secret", func() {
		smc := newSMC("web")
		second := newSMC("api")

		s := controllerScheme()
		c := fake.NewClientBuilder().WithScheme(s).WithObjects(smc, second).Build()
		r := &SecretManagerConfigReconciler{Client: c}

		sec := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: "sops-gpg", Namespace: "team-a"}}
		reqs := r.keySecretToConfigs(context.Background(), sec)
		Expect(reqs).To(HaveLen(2))
	})
})
