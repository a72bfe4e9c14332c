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

package sops

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jpillora/backoff"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/event"
)

// Candidate data keys holding the armored private key, in preference order.
var keyDataKeys = []string{"sops.asc", "key.asc", "identity.asc"}

// KeyWatcher is a manager Runnable that keeps the KeySnapshot in sync with
// the cluster and wakes affected resources through a generic event channel.
// It list+watches every secret named SecretName across namespaces; a broken
// stream is re-established with jittered exponential delays.
type KeyWatcher struct {
	Clientset  kubernetes.Interface
	Log        logr.Logger
	Snapshot   *KeySnapshot
	SecretName string

	// RestartDelay is the base delay before reconnecting a failed stream.
	RestartDelay time.Duration

	// Events receives one GenericEvent per observed key change; the
	// controller consumes it as a raw watch source.
	Events chan event.GenericEvent
}

// NeedLeaderElection keeps the watcher on the elected leader only.
func (w *KeyWatcher) NeedLeaderElection() bool {
	return true
}

// Start blocks until ctx is cancelled.
func (w *KeyWatcher) Start(ctx context.Context) error {
	log := w.Log.WithValues("secretName", w.SecretName)
	log.Info("sops key watcher starting")
	defer log.Info("sops key watcher stopping")

	min := w.RestartDelay
	if min <= 0 {
		min = 5 * time.Second
	}
	retry := &backoff.Backoff{Min: min, Max: 2 * time.Minute, Factor: 2, Jitter: true}

	for {
		err := w.listAndWatch(ctx, log)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			delay := retry.Duration()
			log.Error(err, "key watch stream failed, restarting", "delay", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		// Clean close: the apiserver rotated the stream.
		retry.Reset()
	}
}

func (w *KeyWatcher) listAndWatch(ctx context.Context, log logr.Logger) error {
	opts := metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", w.SecretName).String(),
	}

	list, err := w.Clientset.CoreV1().Secrets(metav1.NamespaceAll).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("listing key secrets: %w", err)
	}
	for i := range list.Items {
		w.absorb(&list.Items[i], false)
	}

	opts.ResourceVersion = list.ResourceVersion
	opts.AllowWatchBookmarks = true
	stream, err := w.Clientset.CoreV1().Secrets(metav1.NamespaceAll).Watch(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting key watch: %w", err)
	}
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream.ResultChan():
			if !ok {
				return nil
			}
			switch ev.Type {
			case watch.Added, watch.Modified:
				if sec, ok := ev.Object.(*corev1.Secret); ok {
					w.absorb(sec, true)
				}
			case watch.Deleted:
				if sec, ok := ev.Object.(*corev1.Secret); ok {
					log.Info("sops key secret deleted", "namespace", sec.Namespace)
					w.Snapshot.MarkAbsent(sec.Namespace, w.SecretName)
					w.notify(sec)
				}
			case watch.Error:
				return fmt.Errorf("key watch error event: %v", apierrors.FromObject(ev.Object))
			}
		}
	}
}

// absorb folds one observed secret into the snapshot.
func (w *KeyWatcher) absorb(sec *corev1.Secret, notify bool) {
	st := stateFromSecret(sec, w.SecretName)

	prev, had := w.Snapshot.Lookup(sec.Namespace)
	w.Snapshot.Set(st)

	if notify && (!had || prev.ResourceVersion != st.ResourceVersion || prev.Available != st.Available) {
		w.notify(sec)
	}
}

// notify wakes every resource in the secret's namespace. Delivery is
// best-effort: a full channel drops the ping rather than blocking the watch
// stream, and the periodic requeue catches up later.
func (w *KeyWatcher) notify(sec *corev1.Secret) {
	if w.Events == nil {
		return
	}
	select {
	case w.Events <- event.GenericEvent{Object: sec}:
	default:
		w.Log.V(1).Info("dropping key change notification, channel full", "namespace", sec.Namespace)
	}
}

// Probe fetches the key secret for one namespace on demand and records the
// outcome in the snapshot. The reconciler calls this when the snapshot has no
// entry yet for a namespace, so status mirrors stay truthful even before the
// watcher has seen an event.
func Probe(ctx context.Context, reader client.Reader, snap *KeySnapshot, secretName, namespace string) KeyState {
	var sec corev1.Secret
	err := reader.Get(ctx, types.NamespacedName{Name: secretName, Namespace: namespace}, &sec)
	if err != nil {
		snap.MarkAbsent(namespace, secretName)
		st, _ := snap.Lookup(namespace)
		return st
	}
	st := stateFromSecret(&sec, secretName)
	snap.Set(st)
	resolved, _ := snap.Lookup(namespace)
	return resolved
}

func stateFromSecret(sec *corev1.Secret, secretName string) KeyState {
	return KeyState{
		Available:       len(extractKeyMaterial(sec)) > 0,
		Key:             extractKeyMaterial(sec),
		SecretName:      secretName,
		Namespace:       sec.Namespace,
		ResourceVersion: sec.ResourceVersion,
		LastChecked:     time.Now(),
	}
}

// extractKeyMaterial picks the armored key out of the secret data, preferring
// the conventional key names and falling back to a single-entry payload.
func extractKeyMaterial(sec *corev1.Secret) []byte {
	for _, k := range keyDataKeys {
		if v, ok := sec.Data[k]; ok && len(v) > 0 {
			return v
		}
	}
	if len(sec.Data) == 1 {
		for _, v := range sec.Data {
			return v
		}
	}
	return nil
}
