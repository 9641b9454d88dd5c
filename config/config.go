package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type Config struct {
	Kubeconfig      string        `mapstructure:"kubeconfig"`
	Namespace       string        `mapstructure:"namespace"`
	Component       string        `mapstructure:"component"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	WatchMaxRetries int           `mapstructure:"watch_max_retries"`
	WatchBackoff    time.Duration `mapstructure:"watch_backoff"`
	EmitTimeout     time.Duration `mapstructure:"emit_timeout"`
	KubeQPS         float32       `mapstructure:"kube_qps"`
	KubeBurst       int           `mapstructure:"kube_burst"`
}

// BindFlags registers every key on fs. Flag names use dashes, config and
// environment keys use underscores (BANSHEE_METRICS_ADDR).
func BindFlags(fs *pflag.FlagSet) {
	fs.String("kubeconfig", "", "Path to kubeconfig (default: $KUBECONFIG, in-cluster, then ~/.kube/config)")
	fs.String("namespace", "", "Namespace to watch (default: all)")
	fs.String("component", "banshee", "Source component recorded on emitted events")
	fs.String("metrics-addr", ":8080", "Address for /metrics and /healthz; empty disables")
	fs.Int("watch-max-retries", 5, "Consecutive failed list/watch attempts before exiting")
	fs.Duration("watch-backoff", time.Second, "Initial delay between failed list/watch attempts")
	fs.Duration("emit-timeout", 10*time.Second, "Timeout for a single event create request")
	fs.Float32("kube-qps", 20, "Client-side QPS limit for API requests")
	fs.Int("kube-burst", 30, "Client-side burst limit for API requests")
}

// Load merges flags, BANSHEE_* environment variables and an optional
// banshee.yaml, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("banshee")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/banshee/")
	v.AddConfigPath("$HOME/.banshee")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BANSHEE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, errors.Wrap(bindErr, "bind flags")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Component == "":
		return errors.New("component must not be empty")
	case c.WatchMaxRetries < 0:
		return errors.Errorf("watch_max_retries must be >= 0, got %d", c.WatchMaxRetries)
	case c.WatchBackoff <= 0:
		return errors.Errorf("watch_backoff must be positive, got %s", c.WatchBackoff)
	case c.EmitTimeout <= 0:
		return errors.Errorf("emit_timeout must be positive, got %s", c.EmitTimeout)
	}
	return nil
}

// RESTConfig resolves cluster credentials: explicit path, $KUBECONFIG,
// in-cluster, then ~/.kube/config.
func (c *Config) RESTConfig() (*rest.Config, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if c.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", c.Kubeconfig)
	} else if k := os.Getenv("KUBECONFIG"); k != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", k)
	} else {
		restCfg, err = rest.InClusterConfig()
		if err != nil {
			restCfg, err = clientcmd.BuildConfigFromFlags("", os.Getenv("HOME")+"/.kube/config")
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "kubeconfig error")
	}
	restCfg.QPS = c.KubeQPS
	restCfg.Burst = c.KubeBurst
	restCfg.UserAgent = c.Component
	return restCfg, nil
}
