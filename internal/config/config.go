// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded into the process environment before Viper reads it.
const DefaultEnvFile = ".env"

// Config captures all monitor configuration knobs loaded via Viper.
type Config struct {
	Targets   []string        `mapstructure:"targets" validate:"dive,required,http_url"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Health    HealthConfig    `mapstructure:"health"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// PoolConfig governs the browser worker pool.
type PoolConfig struct {
	Concurrency  int           `mapstructure:"concurrency" validate:"gte=1"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout" validate:"gt=0"`
	RetryLimit   int           `mapstructure:"retry_limit" validate:"gte=0"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	CloseTimeout time.Duration `mapstructure:"close_timeout" validate:"gt=0"`
	Headless     bool          `mapstructure:"headless"`
	NoSandbox    bool          `mapstructure:"no_sandbox"`
	UserAgent    string        `mapstructure:"user_agent"`
	ChromePath   string        `mapstructure:"chrome_path"`
}

// HealthConfig controls restart thresholds and cadence.
type HealthConfig struct {
	NavTimeoutThreshold int           `mapstructure:"nav_timeout_threshold" validate:"gte=1"`
	RestartInterval     time.Duration `mapstructure:"restart_interval" validate:"gte=0"`
	RestartGrace        time.Duration `mapstructure:"restart_grace" validate:"gte=0"`
}

// ScheduleConfig controls the per-target polling cadence.
type ScheduleConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	Jitter    time.Duration `mapstructure:"jitter" validate:"gte=0"`
	Stagger   time.Duration `mapstructure:"stagger" validate:"gte=0"`
}

// DetectorConfig holds change-detection policy.
type DetectorConfig struct {
	NotifyOutOfStock bool `mapstructure:"notify_out_of_stock"`
	TitleMaxLen      int  `mapstructure:"title_max_len" validate:"gte=0"`
	PrintTable       bool `mapstructure:"print_table"`
}

// NotifyConfig selects notification channels.
type NotifyConfig struct {
	Pushover PushoverConfig  `mapstructure:"pushover"`
	PubSub   PubSubConfig    `mapstructure:"pubsub"`
	Log      LogNotifyConfig `mapstructure:"log"`
}

// PushoverConfig configures push notifications.
type PushoverConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	UserKey  string        `mapstructure:"user_key"`
	APIToken string        `mapstructure:"api_token"`
	Endpoint string        `mapstructure:"endpoint" validate:"omitempty,http_url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// PubSubConfig holds metadata for stock-change events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LogNotifyConfig toggles the dry-run log notifier.
type LogNotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// InventoryConfig controls where change records are appended.
type InventoryConfig struct {
	Dir      string         `mapstructure:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the inventory table.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// RateLimitConfig bounds the per-host request rate.
type RateLimitConfig struct {
	PerHostRPS float64 `mapstructure:"per_host_rps" validate:"gte=0"`
	Burst      int     `mapstructure:"burst" validate:"gte=0"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Values from envFiles (default
// ".env") are exported first without overriding variables already set.
func Load(path string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("STOCKMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("targets", []string{})
	v.SetDefault("pool.concurrency", 2)
	v.SetDefault("pool.task_timeout", 30*time.Second)
	v.SetDefault("pool.retry_limit", 3)
	v.SetDefault("pool.retry_backoff", 500*time.Millisecond)
	v.SetDefault("pool.close_timeout", 30*time.Second)
	v.SetDefault("pool.headless", true)
	v.SetDefault("pool.no_sandbox", false)
	v.SetDefault("pool.user_agent", "")
	v.SetDefault("pool.chrome_path", "")
	v.SetDefault("health.nav_timeout_threshold", 3)
	v.SetDefault("health.restart_interval", 20*time.Minute)
	v.SetDefault("health.restart_grace", 2*time.Second)
	v.SetDefault("schedule.base_delay", 30*time.Second)
	v.SetDefault("schedule.jitter", 20*time.Second)
	v.SetDefault("schedule.stagger", 10*time.Second)
	v.SetDefault("detector.notify_out_of_stock", false)
	v.SetDefault("detector.title_max_len", 40)
	v.SetDefault("detector.print_table", true)
	v.SetDefault("notify.pushover.enabled", true)
	v.SetDefault("notify.pushover.user_key", "")
	v.SetDefault("notify.pushover.api_token", "")
	v.SetDefault("notify.pushover.endpoint", "https://api.pushover.net/1/messages.json")
	v.SetDefault("notify.pushover.timeout", 10*time.Second)
	v.SetDefault("notify.pubsub.enabled", false)
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic_name", "")
	v.SetDefault("notify.log.enabled", false)
	v.SetDefault("inventory.dir", "logs/inventory")
	v.SetDefault("inventory.postgres.enabled", false)
	v.SetDefault("inventory.postgres.dsn", "")
	v.SetDefault("inventory.postgres.table", "inventory_changes")
	v.SetDefault("inventory.postgres.max_conns", 4)
	v.SetDefault("ratelimit.per_host_rps", 0.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// bindLegacyEnv accepts the un-prefixed Pushover variable names as well.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"notify.pushover.user_key":  {"STOCKMON_NOTIFY_PUSHOVER_USER_KEY", "PUSHOVER_USER_KEY"},
		"notify.pushover.api_token": {"STOCKMON_NOTIFY_PUSHOVER_API_TOKEN", "PUSHOVER_API_TOKEN"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Notify.PubSub.Enabled && (c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicName == "") {
		return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Inventory.Postgres.Enabled && c.Inventory.Postgres.DSN == "" {
		return fmt.Errorf("inventory.postgres.dsn must be set when postgres is enabled")
	}
	return nil
}

// ValidateNotifiers checks credentials the monitor cannot run without.
func (c Config) ValidateNotifiers() error {
	p := c.Notify.Pushover
	if p.Enabled && (strings.TrimSpace(p.UserKey) == "" || strings.TrimSpace(p.APIToken) == "") {
		return fmt.Errorf("missing Pushover credentials: set PUSHOVER_USER_KEY and PUSHOVER_API_TOKEN")
	}
	return nil
}

// ValidateTargets ensures there is something to monitor.
func (c Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("targets must list at least one product URL")
	}
	return nil
}
