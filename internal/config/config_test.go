package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	require.Equal(t, 2, cfg.Pool.Concurrency)
	require.Equal(t, 30*time.Second, cfg.Pool.TaskTimeout)
	require.Equal(t, 3, cfg.Pool.RetryLimit)
	require.Equal(t, 30*time.Second, cfg.Schedule.BaseDelay)
	require.Equal(t, 20*time.Second, cfg.Schedule.Jitter)
	require.Equal(t, 10*time.Second, cfg.Schedule.Stagger)
	require.Equal(t, 20*time.Minute, cfg.Health.RestartInterval)
	require.Equal(t, 3, cfg.Health.NavTimeoutThreshold)
	require.Equal(t, 40, cfg.Detector.TitleMaxLen)
	require.False(t, cfg.Detector.NotifyOutOfStock)
	require.True(t, cfg.Notify.Pushover.Enabled)
	require.Equal(t, "logs/inventory", cfg.Inventory.Dir)
	require.Equal(t, "inventory_changes", cfg.Inventory.Postgres.Table)
	require.Empty(t, cfg.Targets)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
targets:
  - https://www.canadacomputers.com/en/product/1
  - https://www.memoryexpress.com/Products/MX00123
pool:
  concurrency: 4
  task_timeout: 45s
  retry_limit: 1
health:
  nav_timeout_threshold: 5
  restart_interval: 1h
schedule:
  base_delay: 1m
  jitter: 0s
  stagger: 2s
detector:
  notify_out_of_stock: true
notify:
  pushover:
    enabled: false
  log:
    enabled: true
server:
  enabled: true
  port: 9090
logging:
  development: false
  level: warn
`)

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	require.Len(t, cfg.Targets, 2)
	require.Equal(t, 4, cfg.Pool.Concurrency)
	require.Equal(t, 45*time.Second, cfg.Pool.TaskTimeout)
	require.Equal(t, 1, cfg.Pool.RetryLimit)
	require.Equal(t, 5, cfg.Health.NavTimeoutThreshold)
	require.Equal(t, time.Hour, cfg.Health.RestartInterval)
	require.Equal(t, time.Minute, cfg.Schedule.BaseDelay)
	require.Zero(t, cfg.Schedule.Jitter)
	require.True(t, cfg.Detector.NotifyOutOfStock)
	require.False(t, cfg.Notify.Pushover.Enabled)
	require.True(t, cfg.Notify.Log.Enabled)
	require.True(t, cfg.Server.Enabled)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.NoError(t, cfg.ValidateNotifiers())
	require.NoError(t, cfg.ValidateTargets())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"concurrency": "pool:\n  concurrency: 0\n",
		"target":      "targets:\n  - not a url\n",
		"threshold":   "health:\n  nav_timeout_threshold: 0\n",
		"pubsub":      "notify:\n  pubsub:\n    enabled: true\n",
		"postgres":    "inventory:\n  postgres:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := writeFile(t, dir, "config.yaml", body)
			if _, err := Load(path, filepath.Join(dir, "missing.env")); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "read config"))
}

func TestPushoverCredentialsFromEnv(t *testing.T) {
	t.Setenv("PUSHOVER_USER_KEY", "user-123")
	t.Setenv("PUSHOVER_API_TOKEN", "token-456")
	t.Setenv("STOCKMON_POOL_CONCURRENCY", "3")
	t.Setenv("STOCKMON_TARGETS", "https://www.bestbuy.ca/en-ca/product/x/17952919")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	require.Equal(t, "user-123", cfg.Notify.Pushover.UserKey)
	require.Equal(t, "token-456", cfg.Notify.Pushover.APIToken)
	require.Equal(t, 3, cfg.Pool.Concurrency)
	require.Equal(t, []string{"https://www.bestbuy.ca/en-ca/product/x/17952919"}, cfg.Targets)
	require.NoError(t, cfg.ValidateNotifiers())
}

func TestEnvFileIsLoaded(t *testing.T) {
	t.Setenv("STOCKMON_SCHEDULE_STAGGER", "")
	if err := os.Unsetenv("STOCKMON_SCHEDULE_STAGGER"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "STOCKMON_SCHEDULE_STAGGER=3s\n")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	require.Equal(t, 3*time.Second, cfg.Schedule.Stagger)
}

func TestValidateNotifiersRequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := Config{Notify: NotifyConfig{Pushover: PushoverConfig{Enabled: true, UserKey: "u"}}}
	err := cfg.ValidateNotifiers()
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing Pushover credentials")

	cfg.Notify.Pushover.Enabled = false
	require.NoError(t, cfg.ValidateNotifiers())
	require.Error(t, cfg.ValidateTargets())
}
