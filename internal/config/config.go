// Package config provides configuration types and defaults for sophia.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sophiahq/sophia/internal/log"
)

// Config holds all configuration options for sophia.
type Config struct {
	// DataDir is the root for the content database, scheduler database,
	// and uploaded images. Default: ~/.sophia
	DataDir string `mapstructure:"data_dir"`

	// DBPath overrides the content database location. Default:
	// <data_dir>/sophia.db. Overridable with DB_PATH.
	DBPath string `mapstructure:"db_path"`

	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Bot       BotConfig       `mapstructure:"bot"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Flags     map[string]bool `mapstructure:"flags"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address for the API. Default: "127.0.0.1:8787"
	Addr string `mapstructure:"addr"`

	// PublicBaseURL is the externally reachable base URL; platforms fetch
	// draft images through it. Default: "http://" + Addr
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// SchedulerConfig holds publishing-loop settings.
type SchedulerConfig struct {
	// Workers is the dispatch pool size. Default: 8
	Workers int `mapstructure:"workers"`

	// DBPath is the bbolt fire-store file. Default: <data_dir>/scheduler.db
	// Overridable with SCHEDULER_DB_PATH.
	DBPath string `mapstructure:"db_path"`

	// DispatchTimeoutSeconds bounds each platform publish call.
	// Default: 30. Overridable with DISPATCH_TIMEOUT_SECONDS.
	DispatchTimeoutSeconds int `mapstructure:"dispatch_timeout_seconds"`

	// StaleThresholdHours is how long a draft may sit in review before
	// the monitor flags it. Default: 4. Overridable with
	// STALE_THRESHOLD_HOURS.
	StaleThresholdHours int `mapstructure:"stale_threshold_hours"`
}

// EventsConfig bounds the in-process event bus and its SSE fan-out.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel capacity. Default: 32.
	// Overridable with EVENT_BUFFER_SIZE.
	BufferSize int `mapstructure:"buffer_size"`

	// MaxSubscribers caps concurrent event-stream subscribers; the SSE
	// endpoint answers 503 past it. Default: 16. Overridable with
	// SSE_MAX_SUBSCRIBERS.
	MaxSubscribers int `mapstructure:"max_subscribers"`
}

// PlatformsConfig holds platform API credentials.
type PlatformsConfig struct {
	Facebook  PlatformCredentials `mapstructure:"facebook"`
	Instagram PlatformCredentials `mapstructure:"instagram"`
}

// PlatformCredentials is one platform's access configuration.
type PlatformCredentials struct {
	AccessToken string `mapstructure:"access_token"`
	Enabled     *bool  `mapstructure:"enabled"` // nil = true
}

// IsEnabled returns whether the platform is enabled (defaults to true).
func (p PlatformCredentials) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// BotConfig holds the messaging-bot bridge settings.
type BotConfig struct {
	// Addr is the listen address for the inbound webhook. Empty disables
	// the bridge.
	Addr string `mapstructure:"addr"`

	// WebhookURL is where outbound notifications are POSTed.
	WebhookURL string `mapstructure:"webhook_url"`

	// Token is the shared secret for both directions.
	Token string `mapstructure:"token"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether span export is active. Default: false
	Enabled bool `mapstructure:"enabled"`
}

// DefaultDataDir returns ~/.sophia, or empty string if the home
// directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sophia")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Scheduler: SchedulerConfig{
			Workers: 8,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

// ContentDBPath returns the sqlite content database path.
func (c Config) ContentDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "sophia.db")
}

// DispatchTimeout returns the per-dispatch deadline.
func (c Config) DispatchTimeout() time.Duration {
	if c.Scheduler.DispatchTimeoutSeconds > 0 {
		return time.Duration(c.Scheduler.DispatchTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// StaleThreshold returns the review age past which the monitor flags a
// draft.
func (c Config) StaleThreshold() time.Duration {
	if c.Scheduler.StaleThresholdHours > 0 {
		return time.Duration(c.Scheduler.StaleThresholdHours) * time.Hour
	}
	return 4 * time.Hour
}

// SchedulerDBPath returns the bbolt fire-store path, honoring the
// SCHEDULER_DB_PATH override.
func (c Config) SchedulerDBPath() string {
	if env := os.Getenv("SCHEDULER_DB_PATH"); env != "" {
		return env
	}
	if c.Scheduler.DBPath != "" {
		return c.Scheduler.DBPath
	}
	return filepath.Join(c.DataDir, "scheduler.db")
}

// ImageDir returns the uploaded-image directory.
func (c Config) ImageDir() string {
	return filepath.Join(c.DataDir, "images")
}

// PublicBaseURL returns the externally reachable API base.
func (c Config) PublicBaseURL() string {
	if c.Server.PublicBaseURL != "" {
		return c.Server.PublicBaseURL
	}
	return "http://" + c.Server.Addr
}

// Validate checks the configuration for errors. Empty values fall back
// to defaults and are always valid.
func Validate(c Config) error {
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0, got %d", c.Scheduler.Workers)
	}
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir must be an absolute path, got %q", c.DataDir)
	}
	if c.Bot.Addr != "" && c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required when bot.addr is set")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with
// comments.
func DefaultConfigTemplate() string {
	return `# Sophia Configuration

# Root directory for databases and uploaded images (default: ~/.sophia)
# data_dir: /path/to/data

# HTTP API settings
server:
  addr: 127.0.0.1:8787
  # Externally reachable base URL; platforms fetch draft images from it.
  # public_base_url: https://sophia.example.com

# Publishing loop settings
scheduler:
  workers: 8
  # db_path: /path/to/scheduler.db      # also settable via SCHEDULER_DB_PATH
  # dispatch_timeout_seconds: 30        # also settable via DISPATCH_TIMEOUT_SECONDS
  # stale_threshold_hours: 4            # also settable via STALE_THRESHOLD_HOURS

# Event bus and SSE fan-out limits
# events:
#   buffer_size: 32         # also settable via EVENT_BUFFER_SIZE
#   max_subscribers: 16     # also settable via SSE_MAX_SUBSCRIBERS

# Platform credentials
platforms:
  facebook:
    access_token: ""
    # enabled: true
  instagram:
    access_token: ""
    # enabled: true

# Messaging-bot bridge (optional)
# bot:
#   addr: 127.0.0.1:8788      # inbound command webhook
#   webhook_url: ""           # where notifications are POSTed
#   token: ""                 # shared secret, required when addr is set

# Tracing (spans printed to stderr)
# tracing:
#   enabled: false
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't
// exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
