package emitter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"github.com/eickler/banshee/metrics"
	"github.com/eickler/banshee/patterns"
)

const (
	ReasonOOMKilling = "OOMKilling"
	DefaultComponent = "banshee"

	LabelManagedBy          = "app.kubernetes.io/managed-by"
	AnnotationContainer     = "banshee.io/container"
	AnnotationRestartCount  = "banshee.io/restart-count"
	AnnotationTerminationAt = "banshee.io/terminated-at"
)

type Outcome string

const (
	OutcomeCreated Outcome = metrics.OutcomeCreated
	// OutcomeDuplicate means an event with the same identity key already
	// exists. It counts as success.
	OutcomeDuplicate Outcome = metrics.OutcomeDuplicate
)

// EventEmitter records kill occurrences as core/v1 Warning events on the
// affected pod. Each event is named by the occurrence key so that repeated
// submissions collapse into one object.
type EventEmitter struct {
	client    kubernetes.Interface
	component string
	clock     clock.PassiveClock
	log       logr.Logger
}

func NewEventEmitter(client kubernetes.Interface, component string, clk clock.PassiveClock, log logr.Logger) *EventEmitter {
	if component == "" {
		component = DefaultComponent
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &EventEmitter{client: client, component: component, clock: clk, log: log.WithName("event_emitter")}
}

// Emit makes a single create attempt.
func (e *EventEmitter) Emit(ctx context.Context, occ patterns.KillOccurrence) (Outcome, error) {
	event := e.BuildEvent(occ)
	start := e.clock.Now()
	_, err := e.client.CoreV1().Events(event.Namespace).Create(ctx, event, metav1.CreateOptions{})
	metrics.EmitDuration.Observe(e.clock.Since(start).Seconds())

	switch {
	case err == nil:
		e.log.Info("Created event", "namespace", event.Namespace, "event", event.Name, "pod", occ.PodName)
		return OutcomeCreated, nil
	case apierrors.IsAlreadyExists(err):
		e.log.V(1).Info("Event already exists", "namespace", event.Namespace, "event", event.Name, "pod", occ.PodName)
		return OutcomeDuplicate, nil
	default:
		return "", errors.Wrapf(err, "create event %s/%s", event.Namespace, event.Name)
	}
}

// BuildEvent renders the notification record for occ.
func (e *EventEmitter) BuildEvent(occ patterns.KillOccurrence) *corev1.Event {
	observed := occ.ObservedAt
	if observed.IsZero() {
		observed = e.clock.Now()
	}
	first := occ.FinishedAt
	if first.IsZero() || first.After(observed) {
		first = observed
	}

	annotations := map[string]string{
		AnnotationContainer:    occ.ContainerName,
		AnnotationRestartCount: strconv.Itoa(int(occ.RestartCount)),
	}
	if !occ.FinishedAt.IsZero() {
		annotations[AnnotationTerminationAt] = occ.FinishedAt.UTC().Format(time.RFC3339)
	}

	return &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:        occ.Key(),
			Namespace:   occ.PodNamespace,
			Labels:      map[string]string{LabelManagedBy: e.component},
			Annotations: annotations,
		},
		InvolvedObject: corev1.ObjectReference{
			Kind:       "Pod",
			APIVersion: "v1",
			Namespace:  occ.PodNamespace,
			Name:       occ.PodName,
			UID:        occ.PodUID,
			FieldPath:  fmt.Sprintf("spec.containers{%s}", occ.ContainerName),
		},
		Reason:         ReasonOOMKilling,
		Message:        Message(occ),
		Type:           corev1.EventTypeWarning,
		Source:         corev1.EventSource{Component: e.component},
		FirstTimestamp: metav1.NewTime(first),
		LastTimestamp:  metav1.NewTime(observed),
		Count:          1,
	}
}

func Message(occ patterns.KillOccurrence) string {
	return fmt.Sprintf("Container %s in pod %s/%s was OOMKilled (restart count %d, exit code %d).",
		occ.ContainerName, occ.PodNamespace, occ.PodName, occ.RestartCount, occ.ExitCode)
}
