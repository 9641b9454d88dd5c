package patterns

import (
	"github.com/eickler/banshee/watcher"
)

// ReasonOOMKilled is the kubelet's termination reason for containers killed
// by the kernel OOM killer. Exit code 137 alone is not evidence of an OOM kill.
const ReasonOOMKilled = "OOMKilled"

// Detect returns one KillOccurrence per container whose last termination was
// an OOM kill, in container status order. Observations without identity or
// status produce nothing.
func Detect(obs watcher.PodObservation) []KillOccurrence {
	if obs.UID == "" || obs.Name == "" {
		return nil
	}
	var out []KillOccurrence
	for _, cs := range obs.Containers {
		term := cs.LastTermination
		if term == nil || term.Reason != ReasonOOMKilled {
			continue
		}
		out = append(out, KillOccurrence{
			PodNamespace:  obs.Namespace,
			PodName:       obs.Name,
			PodUID:        obs.UID,
			ContainerName: cs.Name,
			RestartCount:  cs.RestartCount,
			ExitCode:      term.ExitCode,
			FinishedAt:    term.FinishedAt,
			ObservedAt:    obs.ObservedAt,
		})
	}
	return out
}
