/*
Package leader labels the elected leader pod so operators and services can
tell which replica is actively reconciling. The label rides on controller-
runtime leader election: the Runnable only starts on the leader.
*/
package leader

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	leaderLabelKey   = "role"
	leaderLabelValue = "leader"
)

// PodLabeler adds the leader label to its own pod on election and removes it
// on shutdown. It implements the LeaderElectionRunnable interface so the
// manager only starts it on the elected leader.
type PodLabeler struct {
	Client    client.Client
	Log       logr.Logger
	PodName   string
	Namespace string
}

// NeedLeaderElection implements the LeaderElectionRunnable interface.
func (p *PodLabeler) NeedLeaderElection() bool {
	return true
}

// Start adds the leader label and blocks until the context is canceled.
func (p *PodLabeler) Start(ctx context.Context) error {
	log := p.Log.WithValues("pod", p.PodName, "namespace", p.Namespace)
	log.Info("elected leader, adding leader label")

	if err := p.addLabel(ctx, log); err != nil {
		log.Error(err, "failed to add leader label")
		return err
	}

	<-ctx.Done()

	log.Info("leader shutting down, removing leader label")
	// The run context is already canceled; use a fresh one for cleanup.
	if err := p.removeLabel(context.Background(), log); err != nil {
		log.Error(err, "failed to remove leader label on shutdown")
	}
	return nil
}

func (p *PodLabeler) addLabel(ctx context.Context, log logr.Logger) error {
	pod, err := p.getPod(ctx)
	if err != nil {
		return err
	}

	if pod.Labels == nil {
		pod.Labels = make(map[string]string)
	}

	if val, ok := pod.Labels[leaderLabelKey]; ok && val == leaderLabelValue {
		log.Info("pod already carries the leader label")
		return nil
	}

	pod.Labels[leaderLabelKey] = leaderLabelValue
	return p.Client.Update(ctx, pod)
}

func (p *PodLabeler) removeLabel(ctx context.Context, log logr.Logger) error {
	pod, err := p.getPod(ctx)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if _, ok := pod.Labels[leaderLabelKey]; !ok {
		return nil
	}

	delete(pod.Labels, leaderLabelKey)
	return p.Client.Update(ctx, pod)
}

func (p *PodLabeler) getPod(ctx context.Context) (*corev1.Pod, error) {
	pod := &corev1.Pod{}
	key := types.NamespacedName{Name: p.PodName, Namespace: p.Namespace}
	err := p.Client.Get(ctx, key, pod)
	return pod, err
}

// GetPodName returns the pod name from the POD_NAME environment variable.
func GetPodName() string {
	return os.Getenv("POD_NAME")
}

// GetPodNamespace returns the pod namespace from the POD_NAMESPACE
// environment variable.
func GetPodNamespace() string {
	return os.Getenv("POD_NAMESPACE")
}
