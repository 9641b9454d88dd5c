package watcher

import (
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
)

// PodObservation is a snapshot of one pod's identity and container statuses
// as delivered by the watch stream.
type PodObservation struct {
	Namespace  string
	Name       string
	UID        types.UID
	Containers []ContainerStatus
	ObservedAt time.Time
}

type ContainerStatus struct {
	Name         string
	RestartCount int32
	// LastTermination is nil when the container has never terminated.
	LastTermination *Termination
}

type Termination struct {
	Reason     string
	ExitCode   int32
	FinishedAt time.Time
}

// NewPodObservation copies the fields the pipeline needs out of pod.
func NewPodObservation(pod *corev1.Pod, observedAt time.Time) PodObservation {
	obs := PodObservation{
		Namespace:  pod.Namespace,
		Name:       pod.Name,
		UID:        pod.UID,
		ObservedAt: observedAt,
	}
	if len(pod.Status.ContainerStatuses) == 0 {
		return obs
	}
	obs.Containers = make([]ContainerStatus, 0, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		status := ContainerStatus{Name: cs.Name, RestartCount: cs.RestartCount}
		if term := cs.LastTerminationState.Terminated; term != nil {
			status.LastTermination = &Termination{
				Reason:     term.Reason,
				ExitCode:   term.ExitCode,
				FinishedAt: term.FinishedAt.Time,
			}
		}
		obs.Containers = append(obs.Containers, status)
	}
	return obs
}
