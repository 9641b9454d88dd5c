package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("banshee", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Namespace)
	assert.Equal(t, "banshee", cfg.Component)
	assert.Equal(t, ":8080", cfg.MetricsAddr)
	assert.Equal(t, 5, cfg.WatchMaxRetries)
	assert.Equal(t, time.Second, cfg.WatchBackoff)
	assert.Equal(t, 10*time.Second, cfg.EmitTimeout)
	assert.EqualValues(t, 20, cfg.KubeQPS)
	assert.Equal(t, 30, cfg.KubeBurst)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("BANSHEE_EMIT_TIMEOUT", "3s")
	t.Setenv("BANSHEE_WATCH_MAX_RETRIES", "9")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.EmitTimeout)
	assert.Equal(t, 9, cfg.WatchMaxRetries)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("BANSHEE_NAMESPACE", "from-env")

	cfg, err := load(t, "--namespace=kube-system", "--component=oom-watch")
	require.NoError(t, err)
	assert.Equal(t, "kube-system", cfg.Namespace)
	assert.Equal(t, "oom-watch", cfg.Component)
}

func TestLoad_Invalid(t *testing.T) {
	for name, args := range map[string][]string{
		"zero emit timeout": {"--emit-timeout=0s"},
		"negative retries":  {"--watch-max-retries=-1"},
		"zero backoff":      {"--watch-backoff=0s"},
		"empty component":   {"--component="},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestRESTConfig_ExplicitKubeconfigMissing(t *testing.T) {
	cfg := &Config{Kubeconfig: t.TempDir() + "/missing", Component: "banshee"}
	_, err := cfg.RESTConfig()
	assert.Error(t, err)
}
