package emitter

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/eickler/banshee/patterns"
)

var (
	killedAt   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	observedAt = killedAt.Add(5 * time.Second)
)

func occurrence() patterns.KillOccurrence {
	return patterns.KillOccurrence{
		PodNamespace:  "default",
		PodName:       "worker-1",
		PodUID:        "abc",
		ContainerName: "app",
		RestartCount:  3,
		ExitCode:      137,
		FinishedAt:    killedAt,
		ObservedAt:    observedAt,
	}
}

func newEmitter(t *testing.T, client *fake.Clientset) *EventEmitter {
	return NewEventEmitter(client, "", testingclock.NewFakePassiveClock(observedAt), testr.New(t))
}

func TestBuildEvent(t *testing.T) {
	e := newEmitter(t, fake.NewSimpleClientset())
	ev := e.BuildEvent(occurrence())

	assert.Equal(t, "abc.app.3", ev.Name)
	assert.Equal(t, "default", ev.Namespace)
	assert.Equal(t, corev1.ObjectReference{
		Kind:       "Pod",
		APIVersion: "v1",
		Namespace:  "default",
		Name:       "worker-1",
		UID:        "abc",
		FieldPath:  "spec.containers{app}",
	}, ev.InvolvedObject)
	assert.Equal(t, "OOMKilling", ev.Reason)
	assert.Equal(t, corev1.EventTypeWarning, ev.Type)
	assert.Equal(t, "banshee", ev.Source.Component)
	assert.Equal(t, "banshee", ev.Labels[LabelManagedBy])
	assert.Equal(t, "3", ev.Annotations[AnnotationRestartCount])
	assert.Equal(t, "app", ev.Annotations[AnnotationContainer])
	assert.EqualValues(t, 1, ev.Count)
	assert.True(t, ev.FirstTimestamp.Time.Equal(killedAt))
	assert.True(t, ev.LastTimestamp.Time.Equal(observedAt))

	assert.Contains(t, ev.Message, "worker-1")
	assert.Contains(t, ev.Message, "default")
	assert.Contains(t, ev.Message, "restart count 3")
}

func TestBuildEvent_NoFinishTime(t *testing.T) {
	occ := occurrence()
	occ.FinishedAt = time.Time{}
	ev := newEmitter(t, fake.NewSimpleClientset()).BuildEvent(occ)

	assert.True(t, ev.FirstTimestamp.Time.Equal(observedAt))
	assert.NotContains(t, ev.Annotations, AnnotationTerminationAt)
}

func TestEmit_CreatesOnceThenDuplicate(t *testing.T) {
	client := fake.NewSimpleClientset()
	e := newEmitter(t, client)
	ctx := context.Background()

	outcome, err := e.Emit(ctx, occurrence())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = e.Emit(ctx, occurrence())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	events, err := client.CoreV1().Events("default").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, "abc.app.3", events.Items[0].Name)
}

func TestEmit_Failure(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "events", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(corev1.Resource("events"), "abc.app.3", nil)
	})

	outcome, err := newEmitter(t, client).Emit(context.Background(), occurrence())
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Empty(t, outcome)
}

func TestEmit_CustomComponent(t *testing.T) {
	e := NewEventEmitter(fake.NewSimpleClientset(), "oom-watch", nil, testr.New(t))
	ev := e.BuildEvent(occurrence())
	assert.Equal(t, "oom-watch", ev.Source.Component)
	assert.Equal(t, "oom-watch", ev.Labels[LabelManagedBy])
}
