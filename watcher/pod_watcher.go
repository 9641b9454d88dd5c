package watcher

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"github.com/eickler/banshee/metrics"
)

// ErrRetriesExhausted wraps the last failure once MaxRetries consecutive
// list, watch or resync attempts have failed without a watch event arriving.
var ErrRetriesExhausted = errors.New("pod watch retries exhausted")

var errWatchClosedEmpty = errors.New("watch closed before delivering any event")

type StreamOptions struct {
	// MaxRetries is the number of consecutive failed list/watch attempts
	// tolerated before the stream gives up.
	MaxRetries int
	Backoff    wait.Backoff
	Clock      clock.PassiveClock
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		MaxRetries: 5,
		Backoff: wait.Backoff{
			Duration: time.Second,
			Factor:   2,
			Jitter:   0.1,
			Steps:    5,
		},
		Clock: clock.RealClock{},
	}
}

// PodStream is a pull-based list+watch over pods. Resyncs after an expired
// resource version and reconnects after a closed result channel happen inside
// Next; callers only ever see observations or a terminal error.
type PodStream struct {
	client    kubernetes.Interface
	namespace string
	opts      StreamOptions
	log       logr.Logger

	synced          bool
	resourceVersion string
	pending         []corev1.Pod
	w               watch.Interface
	delivered       bool

	failures int
	backoff  wait.Backoff
}

// NewPodStream watches pods in namespace; "" selects all namespaces.
func NewPodStream(client kubernetes.Interface, namespace string, opts StreamOptions, log logr.Logger) *PodStream {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &PodStream{
		client:    client,
		namespace: namespace,
		opts:      opts,
		log:       log.WithName("pod_watcher"),
		backoff:   opts.Backoff,
	}
}

// Next blocks until the next pod observation is available.
func (s *PodStream) Next(ctx context.Context) (PodObservation, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.stop()
			return PodObservation{}, err
		}

		if len(s.pending) > 0 {
			pod := s.pending[0]
			s.pending = s.pending[1:]
			return NewPodObservation(&pod, s.opts.Clock.Now()), nil
		}

		if !s.synced {
			if err := s.list(ctx); err != nil {
				if err := s.retry(ctx, "list", err); err != nil {
					return PodObservation{}, err
				}
			}
			continue
		}

		if s.w == nil {
			if err := s.watch(ctx); err != nil {
				if err := s.retry(ctx, "watch", err); err != nil {
					return PodObservation{}, err
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.stop()
			return PodObservation{}, ctx.Err()
		case event, ok := <-s.w.ResultChan():
			if !ok {
				metrics.WatchReconnects.Inc()
				s.w = nil
				if !s.delivered {
					if err := s.retry(ctx, "watch", errWatchClosedEmpty); err != nil {
						return PodObservation{}, err
					}
					continue
				}
				s.log.V(2).Info("Watch channel closed, reconnecting", "resourceVersion", s.resourceVersion)
				continue
			}
			obs, deliver, err := s.handleEvent(event)
			if err != nil {
				if err := s.retry(ctx, "watch", err); err != nil {
					return PodObservation{}, err
				}
				continue
			}
			if deliver {
				return obs, nil
			}
		}
	}
}

func (s *PodStream) list(ctx context.Context) error {
	pods, err := s.client.CoreV1().Pods(s.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}
	s.pending = pods.Items
	s.resourceVersion = pods.ResourceVersion
	s.synced = true
	s.log.Info("Listed pods", "namespace", s.namespace, "count", len(pods.Items), "resourceVersion", s.resourceVersion)
	return nil
}

func (s *PodStream) watch(ctx context.Context) error {
	w, err := s.client.CoreV1().Pods(s.namespace).Watch(ctx, metav1.ListOptions{
		ResourceVersion:     s.resourceVersion,
		AllowWatchBookmarks: true,
	})
	if err != nil {
		return err
	}
	s.w = w
	s.delivered = false
	return nil
}

func (s *PodStream) handleEvent(event watch.Event) (PodObservation, bool, error) {
	switch event.Type {
	case watch.Error:
		s.stop()
		return PodObservation{}, false, apierrors.FromObject(event.Object)
	case watch.Added, watch.Modified, watch.Deleted, watch.Bookmark:
	default:
		return PodObservation{}, false, nil
	}

	pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		return PodObservation{}, false, nil
	}
	if pod.ResourceVersion != "" {
		s.resourceVersion = pod.ResourceVersion
	}
	s.delivered = true
	s.resetBackoff()
	if event.Type == watch.Deleted || event.Type == watch.Bookmark {
		return PodObservation{}, false, nil
	}
	return NewPodObservation(pod, s.opts.Clock.Now()), true, nil
}

// retry classifies err. Auth failures are terminal. Everything else, expired
// cursors included, counts as a failure and backs off; the counter is only
// cleared by a delivered watch event, so MaxRetries bounds resync loops too.
func (s *PodStream) retry(ctx context.Context, op string, err error) error {
	s.stop()
	if apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
		return errors.Wrapf(err, "pod %s not permitted", op)
	}

	s.failures++
	if s.failures > s.opts.MaxRetries {
		return errors.Wrapf(ErrRetriesExhausted, "pod %s: %v", op, err)
	}
	delay := s.backoff.Step()
	if apierrors.IsResourceExpired(err) || apierrors.IsGone(err) {
		s.log.Info("Resource version too old, resyncing", "resourceVersion", s.resourceVersion, "attempt", s.failures, "delay", delay)
		metrics.WatchResyncs.Inc()
		s.synced = false
		s.resourceVersion = ""
	} else {
		s.log.Error(err, "Pod request failed, retrying", "op", op, "attempt", s.failures, "delay", delay)
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *PodStream) resetBackoff() {
	s.failures = 0
	s.backoff = s.opts.Backoff
}

func (s *PodStream) stop() {
	if s.w != nil {
		s.w.Stop()
		s.w = nil
	}
}

// Close releases the underlying watch, if any.
func (s *PodStream) Close() {
	s.stop()
}
