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
	"fmt"
	"sync"
	"time"

	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	swpredicates "github.com/fluxcd/source-watcher/controllers"
	"go.opentelemetry.io/otel/metric"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/artifact"
	"github.com/ConfigButler/secret-manager-operator/internal/backoff"
	"github.com/ConfigButler/secret-manager-operator/internal/config"
	"github.com/ConfigButler/secret-manager-operator/internal/events"
	"github.com/ConfigButler/secret-manager-operator/internal/extract"
	"github.com/ConfigButler/secret-manager-operator/internal/metrics"
	"github.com/ConfigButler/secret-manager-operator/internal/provider"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
	"github.com/ConfigButler/secret-manager-operator/internal/syncer"
	"github.com/ConfigButler/secret-manager-operator/internal/validate"
)

// sourceRefIndexKey indexes configs by "<kind>/<namespace>/<name>" of their
// source reference so watch events map back to the configs they affect.
const sourceRefIndexKey = ".spec.sourceRef"

// ArtifactResolver materializes the source tree for one config.
type ArtifactResolver interface {
	Resolve(ctx context.Context, smc *v1alpha1.SecretManagerConfig, opts artifact.Options) (artifact.Artifact, error)
}

// ContentExtractor turns a resolved tree into desired state and remembers
// whether any file needed decryption.
type ContentExtractor interface {
	Extract(ctx context.Context, root string, spec v1alpha1.SecretsSpec) (extract.Content, error)
	DecryptionUsed() bool
}

// SecretManagerConfigReconciler reconciles a SecretManagerConfig object.
type SecretManagerConfigReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	Config   *config.Config
	Backoff  *backoff.Registry
	Snapshot *sops.KeySnapshot
	Resolver ArtifactResolver

	// KeyEvents is fed by the SOPS key watcher; each event wakes the configs
	// in the affected namespace.
	KeyEvents chan event.GenericEvent

	// WatchApplications enables the Argo CD Application watch. Off by
	// default so clusters without the Application CRD start cleanly.
	WatchApplications bool

	// NewProvider and NewExtractor are factory seams; tests swap in fakes.
	// Nil values use the real backends.
	NewProvider  func(ctx context.Context, spec *v1alpha1.SecretManagerConfigSpec, opts provider.Options) (provider.Provider, error)
	NewExtractor func(key []byte) ContentExtractor

	// permRetried tracks resources whose last permission error already went
	// through one backoff; the syncer then fails only the affected service.
	permMu      sync.Mutex
	permRetried map[string]bool
}

// +kubebuilder:rbac:groups=configbutler.ai,resources=secretmanagerconfigs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=configbutler.ai,resources=secretmanagerconfigs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=configbutler.ai,resources=secretmanagerconfigs/finalizers,verbs=update
// +kubebuilder:rbac:groups=source.toolkit.fluxcd.io,resources=gitrepositories,verbs=get;list;watch
// +kubebuilder:rbac:groups=argoproj.io,resources=applications,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile drives one resource through validate, resolve, extract and
// converge, then writes status and decides the next wake-up.
func (r *SecretManagerConfigReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	start := time.Now()

	var smc v1alpha1.SecretManagerConfig
	if err := r.Get(ctx, req.NamespacedName, &smc); err != nil {
		if apierrors.IsNotFound(err) {
			// Deleted; provider state is deliberately left in place.
			r.Backoff.Reset(req.String())
			r.clearPermissionRetried(req.String())
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if r.Config.ReconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Config.ReconcileTimeout)
		defer cancel()
	}

	result, err := r.reconcile(ctx, &smc, req)

	incCounter(ctx, metrics.ReconcilesTotal, 1)
	if err != nil {
		incCounter(ctx, metrics.ReconcileErrorsTotal, 1)
	}
	if metrics.ReconcileDurationSeconds != nil {
		metrics.ReconcileDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}
	return result, err
}

func (r *SecretManagerConfigReconciler) reconcile(ctx context.Context, smc *v1alpha1.SecretManagerConfig, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx)
	id := req.String()

	if smc.Spec.Suspend {
		log.Info("reconciliation suspended")
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, "Suspended",
			metav1.ConditionTrue, ReasonSuspended, "Reconciliation is suspended by spec.suspend", smc.Generation)
		r.event(smc, corev1.EventTypeNormal, events.ReasonSuspended, "Reconciliation suspended")
		return ctrl.Result{}, r.updateStatusWithRetry(ctx, smc)
	}
	smc.Status.Conditions = upsertCondition(smc.Status.Conditions, "Suspended",
		metav1.ConditionFalse, ReasonReconciling, "Reconciliation is active", smc.Generation)

	// Validation runs before any I/O; failures are permanent.
	if err := validate.Spec(&smc.Spec, r.Config.MinPullInterval, r.Config.MinReconcileInterval); err != nil {
		return r.finishError(ctx, smc, id, kindValidation, err)
	}
	interval := durationOrDefault(smc.Spec.ReconcileInterval, defaultReconcileInterval)
	pullInterval := durationOrDefault(smc.Spec.GitRepositoryPullInterval, defaultPullInterval)

	if smc.Status.Phase == "" {
		smc.Status.Phase = v1alpha1.PhasePending
	}
	r.setProgress(smc, v1alpha1.PhaseStarted, "Reconciliation started")

	// Mirror the SOPS key probe before touching the artifact so the status
	// reflects key availability even when later steps fail.
	keyState := r.probeKey(ctx, smc)

	r.setProgress(smc, v1alpha1.PhaseCloning, "Resolving source artifact")
	art, err := r.Resolver.Resolve(ctx, smc, artifact.Options{
		SkipRefresh:  smc.Spec.SuspendGitPulls,
		PullInterval: pullInterval,
	})
	if err != nil {
		incCounter(ctx, metrics.ArtifactFetchFailuresTotal, 1)
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeArtifactResolved,
			metav1.ConditionFalse, string(classifyError(err)), err.Error(), smc.Generation)
		return r.finishError(ctx, smc, id, classifyError(err), err)
	}
	incCounter(ctx, metrics.ArtifactFetchesTotal, 1)
	smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeArtifactResolved,
		metav1.ConditionTrue, "ArtifactResolved", fmt.Sprintf("Resolved revision %s", art.Revision), smc.Generation)

	extractor := r.newExtractor(keyState.Key)
	content, err := extractor.Extract(ctx, art.LocalPath, smc.Spec.Secrets)
	r.mirrorDecryption(ctx, smc, extractor, err)
	if err != nil {
		return r.finishError(ctx, smc, id, classifyError(err), err)
	}

	if content.Empty() {
		log.Info("artifact contains no secrets or properties", "revision", art.Revision)
	}

	r.setProgress(smc, v1alpha1.PhaseUpdating, "Converging provider state")
	prov, err := r.newProvider(ctx, smc)
	if err != nil {
		return r.finishError(ctx, smc, id, classifyError(err), err)
	}

	engine := &syncer.Engine{
		Provider:          prov,
		Log:               log.WithName("syncer"),
		PermissionRetried: r.permissionRetried(id),
	}
	rep, convErr := engine.Converge(ctx, content, smc.Status.Sync, &smc.Spec)
	r.foldReport(ctx, smc, rep)
	if convErr != nil {
		incCounter(ctx, metrics.ProviderErrorsTotal, 1)
		return r.finishError(ctx, smc, id, classifyError(convErr), convErr)
	}

	for _, drift := range rep.Drifts {
		incCounter(ctx, metrics.DriftDetectedTotal, 1)
		r.event(smc, corev1.EventTypeWarning, events.ReasonDriftDetected,
			fmt.Sprintf("Provider value for %s (service %s) differs from Git", drift.Name, drift.Service))
	}

	return r.finishReport(ctx, smc, id, rep, art.Revision, interval)
}

// newProvider reads static credentials when the spec references an auth
// secret and builds the backend, honoring the test seam.
func (r *SecretManagerConfigReconciler) newProvider(ctx context.Context, smc *v1alpha1.SecretManagerConfig) (provider.Provider, error) {
	creds, err := r.authCredentials(ctx, smc)
	if err != nil {
		return nil, err
	}
	opts := provider.Options{
		Environment: smc.Spec.Secrets.Environment,
		Credentials: creds,
	}
	if r.NewProvider != nil {
		return r.NewProvider(ctx, &smc.Spec, opts)
	}
	return provider.ForSpec(ctx, &smc.Spec, opts)
}

func (r *SecretManagerConfigReconciler) authCredentials(ctx context.Context, smc *v1alpha1.SecretManagerConfig) (map[string][]byte, error) {
	var ref *v1alpha1.ProviderAuth
	switch {
	case smc.Spec.Provider.GCP != nil:
		ref = smc.Spec.Provider.GCP.Auth
	case smc.Spec.Provider.AWS != nil:
		ref = smc.Spec.Provider.AWS.Auth
	case smc.Spec.Provider.Azure != nil:
		ref = smc.Spec.Provider.Azure.Auth
	}
	if ref == nil {
		return nil, nil
	}

	var sec corev1.Secret
	key := types.NamespacedName{Name: ref.SecretRef.Name, Namespace: smc.Namespace}
	if err := r.Get(ctx, key, &sec); err != nil {
		return nil, fmt.Errorf("reading provider auth secret %s: %w", key, err)
	}
	return sec.Data, nil
}

func (r *SecretManagerConfigReconciler) newExtractor(key []byte) ContentExtractor {
	if r.NewExtractor != nil {
		return r.NewExtractor(key)
	}
	dec := &countingDecrypter{inner: sops.NewDecryptor(r.Config.SopsBinary, key)}
	return &defaultExtractor{
		ex: &extract.Extractor{
			KustomizeBinary: r.Config.KustomizeBinary,
			Decrypter:       dec,
		},
		dec: dec,
	}
}

// probeKey resolves the SOPS key state for the resource's namespace, probing
// the cluster when the snapshot has no entry yet, and mirrors the outcome
// into status.
func (r *SecretManagerConfigReconciler) probeKey(ctx context.Context, smc *v1alpha1.SecretManagerConfig) sops.KeyState {
	st, ok := r.Snapshot.Lookup(smc.Namespace)
	if !ok {
		st = sops.Probe(ctx, r.Client, r.Snapshot, r.Config.SopsSecretName, smc.Namespace)
	}

	available := st.Available
	smc.Status.SopsKeyAvailable = &available
	smc.Status.SopsKeySecretName = r.Config.SopsSecretName
	smc.Status.SopsKeyNamespace = st.Namespace
	if !st.LastChecked.IsZero() {
		checked := metav1.NewTime(st.LastChecked)
		smc.Status.SopsKeyLastChecked = &checked
	}
	return st
}

// mirrorDecryption records the SOPS outcome of one extraction pass.
func (r *SecretManagerConfigReconciler) mirrorDecryption(ctx context.Context, smc *v1alpha1.SecretManagerConfig, extractor ContentExtractor, extractErr error) {
	now := metav1.Now()

	if de, ok := sops.AsDecryptError(extractErr); ok {
		incCounter(ctx, metrics.SopsDecryptFailuresTotal, 1)
		if de.Class.Permanent() && de.Class != sops.ClassKeyNotFound {
			smc.Status.DecryptionStatus = v1alpha1.DecryptionPermanentFailure
		} else {
			smc.Status.DecryptionStatus = v1alpha1.DecryptionTransientFailure
		}
		smc.Status.DecryptionTime = &now
		smc.Status.LastDecryptionError = de.Error()
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeDecryption,
			metav1.ConditionFalse, string(de.Class), de.Error(), smc.Generation)
		return
	}
	if extractErr != nil {
		return
	}

	if !extractor.DecryptionUsed() {
		smc.Status.DecryptionStatus = v1alpha1.DecryptionNotApplicable
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeDecryption,
			metav1.ConditionTrue, "NotApplicable", "No encrypted files in artifact", smc.Generation)
		return
	}

	incCounter(ctx, metrics.SopsDecryptsTotal, 1)
	smc.Status.DecryptionStatus = v1alpha1.DecryptionSuccess
	smc.Status.DecryptionTime = &now
	smc.Status.LastDecryptionError = ""
	smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeDecryption,
		metav1.ConditionTrue, "DecryptionSucceeded", "All encrypted files decrypted", smc.Generation)
}

// foldReport copies the converge bookkeeping into status. Entries are never
// removed: a name stays tracked through disables and absence.
func (r *SecretManagerConfigReconciler) foldReport(ctx context.Context, smc *v1alpha1.SecretManagerConfig, rep *syncer.Report) {
	if rep == nil {
		return
	}
	smc.Status.Sync.Secrets = rep.Secrets
	smc.Status.Sync.Properties = rep.Properties
	smc.Status.SecretsSynced = rep.SecretsSynced()
	if n := len(rep.FailedServices); n > 0 {
		incCounter(ctx, metrics.SyncFailuresTotal, int64(n))
	}
}

// finishReport writes the terminal status for a converge that ran to
// completion and schedules the next reconciliation.
func (r *SecretManagerConfigReconciler) finishReport(
	ctx context.Context,
	smc *v1alpha1.SecretManagerConfig,
	id string,
	rep *syncer.Report,
	revision string,
	interval time.Duration,
) (ctrl.Result, error) {
	switch rep.Outcome {
	case syncer.Succeeded:
		r.Backoff.Reset(id)
		r.clearPermissionRetried(id)
		r.setReady(smc, v1alpha1.PhaseReady, ReasonReconcileSucceeded,
			fmt.Sprintf("Synced %d secrets at revision %s", smc.Status.SecretsSynced, revision))
		smc.Status.ObservedGeneration = smc.Generation
		r.event(smc, corev1.EventTypeNormal, events.ReasonReconciled,
			fmt.Sprintf("Reconciled revision %s", revision))
		return r.requeueAfter(ctx, smc, interval)

	case syncer.PartialFailure:
		r.Backoff.Reset(id)
		msg := fmt.Sprintf("Partial failure at revision %s: %v", revision, rep.AggregateError())
		smc.Status.Phase = v1alpha1.PhasePartialFailure
		smc.Status.Description = msg
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeReady,
			metav1.ConditionFalse, ReasonPartialFailure, msg, smc.Generation)
		smc.Status.ObservedGeneration = smc.Generation
		r.event(smc, corev1.EventTypeWarning, events.ReasonPartialFailure, msg)
		return r.requeueAfter(ctx, smc, interval)

	default: // syncer.Failed: every service failed permanently.
		msg := fmt.Sprintf("All services failed at revision %s: %v", revision, rep.AggregateError())
		r.setReady(smc, v1alpha1.PhaseFailed, ReasonSyncFailed, msg)
		r.event(smc, corev1.EventTypeWarning, events.ReasonSyncFailed, msg)
		// Permanent until the source changes; the watch wakes us.
		return ctrl.Result{}, r.updateStatusWithRetry(ctx, smc)
	}
}

// finishError writes status for a failed reconciliation and schedules per
// the error kind: awaitChange kinds return without a timer, permanent kinds
// stop until the spec or source changes, transient kinds requeue with the
// Fibonacci backoff.
func (r *SecretManagerConfigReconciler) finishError(
	ctx context.Context,
	smc *v1alpha1.SecretManagerConfig,
	id string,
	kind errorKind,
	cause error,
) (ctrl.Result, error) {
	log := logf.FromContext(ctx)

	if kind.awaitsChange() {
		reason := ReasonAwaitingSource
		if kind == kindSopsKeyMissing {
			reason = ReasonAwaitingSopsKey
		}
		msg := fmt.Sprintf("Waiting for external change: %v", cause)
		smc.Status.Phase = v1alpha1.PhasePending
		smc.Status.Description = msg
		smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeReady,
			metav1.ConditionFalse, reason, msg, smc.Generation)
		r.event(smc, corev1.EventTypeNormal, kind.eventReason(), msg)
		log.Info("awaiting external change", "kind", string(kind), "cause", cause.Error())
		return ctrl.Result{}, r.updateStatusWithRetry(ctx, smc)
	}

	reason := ReasonSyncFailed
	if kind == kindValidation {
		reason = ReasonInvalidSpec
	}
	msg := fmt.Sprintf("%s: %v", kind, cause)
	r.setReady(smc, v1alpha1.PhaseFailed, reason, msg)
	r.event(smc, corev1.EventTypeWarning, kind.eventReason(), msg)

	if kind.permanent() {
		log.Info("permanent failure, waiting for spec or source change", "kind", string(kind), "cause", cause.Error())
		return ctrl.Result{}, r.updateStatusWithRetry(ctx, smc)
	}

	if kind == kindProviderPermission {
		// One backoff for IAM propagation; from the next attempt on the
		// syncer isolates a still-forbidden response to its service.
		r.markPermissionRetried(id)
	}
	delay := r.Backoff.Next(id)
	log.Error(cause, "transient failure, backing off", "kind", string(kind), "delay", delay)
	return r.requeueAfter(ctx, smc, delay)
}

func (r *SecretManagerConfigReconciler) permissionRetried(id string) bool {
	r.permMu.Lock()
	defer r.permMu.Unlock()
	return r.permRetried[id]
}

func (r *SecretManagerConfigReconciler) markPermissionRetried(id string) {
	r.permMu.Lock()
	defer r.permMu.Unlock()
	if r.permRetried == nil {
		r.permRetried = map[string]bool{}
	}
	r.permRetried[id] = true
}

func (r *SecretManagerConfigReconciler) clearPermissionRetried(id string) {
	r.permMu.Lock()
	defer r.permMu.Unlock()
	delete(r.permRetried, id)
}

// setProgress updates the in-flight phase without touching conditions. The
// intermediate phases only become visible when a later status write happens
// while the reconciliation is still in that phase.
func (r *SecretManagerConfigReconciler) setProgress(smc *v1alpha1.SecretManagerConfig, phase v1alpha1.SyncPhase, description string) {
	smc.Status.Phase = phase
	smc.Status.Description = description
}

// setReady sets the phase and the matching Ready condition together so the
// two never disagree.
func (r *SecretManagerConfigReconciler) setReady(smc *v1alpha1.SecretManagerConfig, phase v1alpha1.SyncPhase, reason, message string) {
	smc.Status.Phase = phase
	smc.Status.Description = message
	status := metav1.ConditionFalse
	if phase == v1alpha1.PhaseReady {
		status = metav1.ConditionTrue
	}
	smc.Status.Conditions = upsertCondition(smc.Status.Conditions, ConditionTypeReady,
		status, reason, message, smc.Generation)
}

func (r *SecretManagerConfigReconciler) requeueAfter(ctx context.Context, smc *v1alpha1.SecretManagerConfig, delay time.Duration) (ctrl.Result, error) {
	next := metav1.NewTime(time.Now().Add(delay))
	smc.Status.NextReconcileTime = &next
	if err := r.updateStatusWithRetry(ctx, smc); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: delay}, nil
}

// updateStatusWithRetry updates the status with retry logic to handle
// optimistic-concurrency conflicts.
func (r *SecretManagerConfigReconciler) updateStatusWithRetry(ctx context.Context, smc *v1alpha1.SecretManagerConfig) error {
	now := metav1.Now()
	smc.Status.LastReconcileTime = &now

	return wait.ExponentialBackoff(wait.Backoff{
		Duration: RetryInitialDuration,
		Factor:   RetryBackoffFactor,
		Jitter:   RetryBackoffJitter,
		Steps:    RetryMaxSteps,
	}, func() (bool, error) {
		// Get the latest version of the resource
		latest := &v1alpha1.SecretManagerConfig{}
		if err := r.Get(ctx, client.ObjectKeyFromObject(smc), latest); err != nil {
			if apierrors.IsNotFound(err) {
				// Resource was deleted, nothing to update
				return true, nil
			}
			return false, err
		}

		// Copy our status to the latest version
		latest.Status = smc.Status

		// Attempt to update
		if err := r.Status().Update(ctx, latest); err != nil {
			if apierrors.IsConflict(err) {
				// Resource version conflict, retry
				return false, nil
			}
			// Other error, stop retrying
			return false, err
		}

		// Success
		return true, nil
	})
}

func (r *SecretManagerConfigReconciler) event(smc *v1alpha1.SecretManagerConfig, eventType, reason, message string) {
	if r.Recorder != nil {
		r.Recorder.Event(smc, eventType, reason, message)
	}
}

// incCounter tolerates the exporter not being initialized, which is the
// normal state in unit tests.
func incCounter(ctx context.Context, c metric.Int64Counter, n int64) {
	if c != nil {
		c.Add(ctx, n)
	}
}

// Interval fallbacks matching the CRD defaults, for objects that bypassed
// API-server defaulting.
const (
	defaultReconcileInterval = 10 * time.Minute
	defaultPullInterval      = 5 * time.Minute
)

func durationOrDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := validate.Duration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// sourceRefKey is the index value for one config's source reference.
func sourceRefKey(kind v1alpha1.SourceKind, namespace, name string) string {
	return fmt.Sprintf("%s/%s/%s", kind, namespace, name)
}

// annotationOrGenerationChanged passes update events where either the
// generation changed (spec edits) or the reconcile annotation changed
// (manual trigger).
type annotationOrGenerationChanged struct {
	predicate.Funcs
}

func (p annotationOrGenerationChanged) Update(e event.UpdateEvent) bool {
	if e.ObjectOld == nil || e.ObjectNew == nil {
		return true
	}
	if e.ObjectOld.GetGeneration() != e.ObjectNew.GetGeneration() {
		return true
	}
	return e.ObjectOld.GetAnnotations()[ReconcileAnnotation] != e.ObjectNew.GetAnnotations()[ReconcileAnnotation]
}

// SetupWithManager sets up the controller with the Manager.
func (r *SecretManagerConfigReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.GetCache().IndexField(
		context.Background(), &v1alpha1.SecretManagerConfig{}, sourceRefIndexKey,
		func(obj client.Object) []string {
			smc, ok := obj.(*v1alpha1.SecretManagerConfig)
			if !ok {
				return nil
			}
			return []string{sourceRefKey(smc.Spec.SourceRef.Kind, smc.SourceNamespace(), smc.Spec.SourceRef.Name)}
		}); err != nil {
		return fmt.Errorf("indexing source references: %w", err)
	}

	b := ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.SecretManagerConfig{}, builder.WithPredicates(annotationOrGenerationChanged{})).
		Named("secretmanagerconfig").
		WithOptions(controller.Options{MaxConcurrentReconciles: r.Config.WorkerCount}).
		Watches(
			&sourcev1.GitRepository{},
			handler.EnqueueRequestsFromMapFunc(r.gitRepositoryToConfigs),
			builder.WithPredicates(swpredicates.GitRepositoryRevisionChangePredicate{}),
		)

	if r.WatchApplications {
		app := &unstructured.Unstructured{}
		app.SetGroupVersionKind(artifact.ApplicationGVK)
		b = b.Watches(app, handler.EnqueueRequestsFromMapFunc(r.applicationToConfigs))
	}

	if r.KeyEvents != nil {
		b = b.WatchesRawSource(source.Channel(r.KeyEvents, handler.EnqueueRequestsFromMapFunc(r.keySecretToConfigs)))
	}

	return b.Complete(r)
}

// gitRepositoryToConfigs maps a GitRepository event to the configs that
// reference it.
func (r *SecretManagerConfigReconciler) gitRepositoryToConfigs(ctx context.Context, obj client.Object) []reconcile.Request {
	return r.configsForSource(ctx, v1alpha1.SourceKindGitRepository, obj.GetNamespace(), obj.GetName())
}

func (r *SecretManagerConfigReconciler) applicationToConfigs(ctx context.Context, obj client.Object) []reconcile.Request {
	return r.configsForSource(ctx, v1alpha1.SourceKindApplication, obj.GetNamespace(), obj.GetName())
}

func (r *SecretManagerConfigReconciler) configsForSource(ctx context.Context, kind v1alpha1.SourceKind, namespace, name string) []reconcile.Request {
	var list v1alpha1.SecretManagerConfigList
	err := r.List(ctx, &list, client.MatchingFields{sourceRefIndexKey: sourceRefKey(kind, namespace, name)})
	if err != nil {
		logf.FromContext(ctx).Error(err, "listing configs for source", "kind", kind, "namespace", namespace, "name", name)
		return nil
	}

	requests := make([]reconcile.Request, 0, len(list.Items))
	for i := range list.Items {
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: list.Items[i].Namespace, Name: list.Items[i].Name},
		})
	}
	return requests
}

// keySecretToConfigs wakes every config in the namespace of a changed SOPS
// key secret so their status mirrors refresh.
func (r *SecretManagerConfigReconciler) keySecretToConfigs(ctx context.Context, obj client.Object) []reconcile.Request {
	var list v1alpha1.SecretManagerConfigList
	if err := r.List(ctx, &list, client.InNamespace(obj.GetNamespace())); err != nil {
		logf.FromContext(ctx).Error(err, "listing configs for sops key change", "namespace", obj.GetNamespace())
		return nil
	}

	requests := make([]reconcile.Request, 0, len(list.Items))
	for i := range list.Items {
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: list.Items[i].Namespace, Name: list.Items[i].Name},
		})
	}
	return requests
}

// countingDecrypter remembers whether any input actually carried a sops
// envelope, which drives the NotApplicable decryption status.
type countingDecrypter struct {
	inner extract.Decrypter
	used  bool
}

func (c *countingDecrypter) MaybeDecrypt(ctx context.Context, content []byte, format sops.Format) ([]byte, error) {
	if sops.IsEncrypted(content) {
		c.used = true
	}
	return c.inner.MaybeDecrypt(ctx, content, format)
}

type defaultExtractor struct {
	ex  *extract.Extractor
	dec *countingDecrypter
}

func (d *defaultExtractor) Extract(ctx context.Context, root string, spec v1alpha1.SecretsSpec) (extract.Content, error) {
	return d.ex.Extract(ctx, root, spec)
}

func (d *defaultExtractor) DecryptionUsed() bool {
	return d.dec.used
}
