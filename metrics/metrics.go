package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

var (
	KillsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "banshee_oom_kills_detected_total",
			Help: "OOM kill occurrences found in pod observations, including re-deliveries",
		},
	)

	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "banshee_oom_kills_skipped_total",
			Help: "OOM kill occurrences skipped because they were already reported",
		},
	)

	Emissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banshee_events_emitted_total",
			Help: "Event create attempts by outcome",
		},
		[]string{"outcome"}, // created, duplicate, failed
	)

	EmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "banshee_event_emit_duration_seconds",
			Help:    "Latency of event create requests",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	WatchResyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "banshee_watch_resyncs_total",
			Help: "Full relists caused by an expired resource version",
		},
	)

	WatchReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "banshee_watch_reconnects_total",
			Help: "Watch restarts after the server closed the result channel",
		},
	)
)

// RegisterTrackedKeys exposes the size of the dedup set as a gauge.
func RegisterTrackedKeys(reg prometheus.Registerer, size func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "banshee_tracked_keys",
			Help: "Identity keys remembered by the dedup tracker",
		},
		func() float64 { return float64(size()) },
	))
}

// Handler serves /metrics from the default registry and a trivial /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
