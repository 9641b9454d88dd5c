package main

import (
	"context"
	"errors"
	goflag "flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/eickler/banshee/config"
	"github.com/eickler/banshee/dedup"
	"github.com/eickler/banshee/emitter"
	"github.com/eickler/banshee/metrics"
	"github.com/eickler/banshee/monitor"
	"github.com/eickler/banshee/watcher"
)

func main() {
	cmd := &cobra.Command{
		Use:           "banshee",
		Short:         "Record an event for every OOM-killed container in the cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	config.BindFlags(cmd.Flags())
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.Flags().AddGoFlagSet(klogFlags)

	if err := cmd.Execute(); err != nil {
		klog.ErrorS(err, "banshee exited")
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func run(cfg *config.Config) error {
	log := klog.Background()

	restCfg, err := cfg.RESTConfig()
	if err != nil {
		return err
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return err
	}
	log.Info("Kubernetes client connected", "host", restCfg.Host, "namespace", cfg.Namespace)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker := dedup.NewTracker()
	if err := metrics.RegisterTrackedKeys(prometheus.DefaultRegisterer, tracker.Len); err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(err, "Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := watcher.DefaultStreamOptions()
	opts.MaxRetries = cfg.WatchMaxRetries
	opts.Backoff.Duration = cfg.WatchBackoff
	stream := watcher.NewPodStream(client, cfg.Namespace, opts, log)
	defer stream.Close()

	emit := emitter.NewEventEmitter(client, cfg.Component, clock.RealClock{}, log)
	return monitor.New(stream, emit, tracker, cfg.EmitTimeout, log).Run(ctx)
}
