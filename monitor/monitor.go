// Package monitor drives the watch → detect → dedup → emit pipeline.
package monitor

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/eickler/banshee/dedup"
	"github.com/eickler/banshee/emitter"
	"github.com/eickler/banshee/metrics"
	"github.com/eickler/banshee/patterns"
	"github.com/eickler/banshee/watcher"
)

type Source interface {
	Next(ctx context.Context) (watcher.PodObservation, error)
}

type Emitter interface {
	Emit(ctx context.Context, occ patterns.KillOccurrence) (emitter.Outcome, error)
}

type Monitor struct {
	source      Source
	emitter     Emitter
	tracker     *dedup.Tracker
	emitTimeout time.Duration
	log         logr.Logger
}

func New(source Source, e Emitter, tracker *dedup.Tracker, emitTimeout time.Duration, log logr.Logger) *Monitor {
	if tracker == nil {
		tracker = dedup.NewTracker()
	}
	return &Monitor{
		source:      source,
		emitter:     e,
		tracker:     tracker,
		emitTimeout: emitTimeout,
		log:         log.WithName("monitor"),
	}
}

// Run consumes the source until it fails. It returns nil when ctx is
// cancelled and the wrapped stream error otherwise.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("Starting")
	for {
		obs, err := m.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.log.Info("Stopped")
				return nil
			}
			return errors.Wrap(err, "pod watch terminated")
		}
		m.process(ctx, obs)
	}
}

func (m *Monitor) process(ctx context.Context, obs watcher.PodObservation) {
	for _, occ := range patterns.Detect(obs) {
		metrics.KillsDetected.Inc()
		key := occ.Key()
		log := m.log.WithValues(
			"namespace", occ.PodNamespace,
			"pod", occ.PodName,
			"container", occ.ContainerName,
			"restartCount", occ.RestartCount,
			"key", key,
		)

		if m.tracker.Seen(key) {
			metrics.DuplicatesSkipped.Inc()
			log.V(2).Info("OOMKill already reported")
			continue
		}
		log.Info("OOMKill detected", "exitCode", occ.ExitCode)

		outcome, err := m.emit(ctx, occ)
		if err != nil {
			metrics.Emissions.WithLabelValues(metrics.OutcomeFailed).Inc()
			log.Error(err, "Failed to record OOMKill event")
			continue
		}
		metrics.Emissions.WithLabelValues(string(outcome)).Inc()
		// Only a stored event marks the key, so a failed attempt stays
		// eligible when the pod is delivered again.
		m.tracker.Mark(key)
		log.Info("OOMKill recorded", "outcome", outcome)
	}
}

// emit is not interrupted by shutdown; it is bounded by emitTimeout instead.
func (m *Monitor) emit(ctx context.Context, occ patterns.KillOccurrence) (emitter.Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	if m.emitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.emitTimeout)
		defer cancel()
	}
	return m.emitter.Emit(ctx, occ)
}
