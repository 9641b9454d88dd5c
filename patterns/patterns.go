package patterns

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/types"
)

// KillOccurrence is one container termination by the OOM killer, derived
// from a single pod observation.
type KillOccurrence struct {
	PodNamespace  string
	PodName       string
	PodUID        types.UID
	ContainerName string
	RestartCount  int32
	ExitCode      int32
	// FinishedAt is zero when the kubelet did not report a finish time.
	FinishedAt time.Time
	ObservedAt time.Time
}

// Key identifies the occurrence across re-deliveries. It doubles as the name
// of the recorded Event. Container names are DNS labels and UIDs never
// contain dots, so the key is unambiguous.
func (o KillOccurrence) Key() string {
	return fmt.Sprintf("%s.%s.%d", o.PodUID, o.ContainerName, o.RestartCount)
}
