package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ParseArgs([]string{"-state-dir", dir})
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Server.Addr)
	assert.Equal(t, "http", cfg.Mode)
	assert.Equal(t, dir, cfg.StateDir)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, defaultWorkers, cfg.Execution.Workers)
	assert.Equal(t, defaultShutdownGrace, cfg.ShutdownGrace)
	assert.Equal(t, "failed", cfg.Notification.On)
	assert.False(t, cfg.MetricsEnabled)
}

func TestParseArgsEnvironment(t *testing.T) {
	t.Setenv("BROWSERCRON_ADDR", "0.0.0.0:9000")
	t.Setenv("BROWSERCRON_MODE", "BOTH")
	t.Setenv("BROWSERCRON_HEADLESS", "false")
	t.Setenv("BROWSERCRON_WORKERS", "4")
	t.Setenv("BROWSERCRON_ACTION_TIMEOUT", "3s")
	t.Setenv("BROWSERCRON_USE_UTC", "yes")
	t.Setenv("BROWSERCRON_METRICS_ENABLED", "1")
	t.Setenv("BROWSERCRON_STATE_DIR", t.TempDir())

	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "both", cfg.Mode)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Execution.Workers)
	assert.Equal(t, 3*time.Second, cfg.Browser.ActionTimeout)
	assert.True(t, cfg.UseUTC)
	assert.True(t, cfg.MetricsEnabled)
}

func TestParseArgsFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("BROWSERCRON_ADDR", "0.0.0.0:9000")
	t.Setenv("BROWSERCRON_USE_UTC", "true")
	t.Setenv("BROWSERCRON_SHUTDOWN_GRACE", "1m")

	cfg, err := ParseArgs([]string{
		"-addr", "127.0.0.1:8080",
		"-use-utc=false",
		"-shutdown-grace", "5s",
		"-state-dir", t.TempDir(),
		"-mode", "mcp",
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.False(t, cfg.UseUTC)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, "mcp", cfg.Mode)
}

func TestParseArgsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ParseArgs([]string{"-state-dir", dir, "-mode", "grpc"})
	assert.ErrorContains(t, err, "invalid mode")

	_, err = ParseArgs([]string{"-state-dir", dir, "-workers", "0"})
	assert.ErrorContains(t, err, "workers")

	t.Setenv("BROWSERCRON_BARK_ENABLED", "true")
	_, err = ParseArgs([]string{"-state-dir", dir})
	assert.ErrorContains(t, err, "BARK_URL")

	_, err = ParseArgs([]string{"-no-such-flag"})
	assert.Error(t, err)
}
