// Package controller reconciles SecretManagerConfig resources: it resolves
// the GitOps artifact, decrypts and extracts the declared content, and
// converges the selected cloud secret store onto it.
package controller

import "time"

const (
	// ConditionTypeReady is the summary condition mirroring the phase.
	ConditionTypeReady = "Ready"
	// ConditionTypeArtifactResolved tracks the source resolution step.
	ConditionTypeArtifactResolved = "ArtifactResolved"
	// ConditionTypeDecryption tracks the SOPS pipeline outcome.
	ConditionTypeDecryption = "Decryption"

	// ReconcileAnnotation triggers an out-of-schedule reconciliation when its
	// value changes; the CLI writes a unix timestamp into it.
	ReconcileAnnotation = "configbutler.ai/reconcile"

	// RetryInitialDuration is the initial duration for the status-write
	// conflict retry.
	RetryInitialDuration = 100 * time.Millisecond
	// RetryBackoffFactor is the multiplicative factor for exponential backoff.
	RetryBackoffFactor = 2.0
	// RetryBackoffJitter is the jitter factor for retry backoff.
	RetryBackoffJitter = 0.1
	// RetryMaxSteps is the maximum number of retry attempts.
	RetryMaxSteps = 5
)

// Condition reasons surfaced on the Ready condition.
const (
	ReasonReconcileSucceeded = "ReconcileSucceeded"
	ReasonReconciling        = "Reconciling"
	ReasonSuspended          = "Suspended"
	ReasonAwaitingSource     = "AwaitingSource"
	ReasonAwaitingSopsKey    = "AwaitingSopsKey"
	ReasonPartialFailure     = "PartialFailure"
	ReasonSyncFailed         = "SyncFailed"
	ReasonInvalidSpec        = "InvalidSpec"
)
