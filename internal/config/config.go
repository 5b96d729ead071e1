// Package config loads incident-mirror configuration from defaults, an
// optional YAML file and MIRROR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: MIRROR_DISCORD__WEBHOOK_TOKEN.
const EnvPrefix = "MIRROR_"

// Config is the complete application configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Feed      FeedConfig      `koanf:"feed"`
	Discord   DiscordConfig   `koanf:"discord"`
	Store     StoreConfig     `koanf:"store"`
	Lock      LockConfig      `koanf:"lock"`
	Mirror    MirrorConfig    `koanf:"mirror"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// FeedConfig configures the status page client.
type FeedConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	UserAgent string        `koanf:"user_agent"`
}

// DiscordConfig configures the webhook client.
type DiscordConfig struct {
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	WebhookID    string        `koanf:"webhook_id" validate:"required"`
	WebhookToken string        `koanf:"webhook_token" validate:"required"`
	Username     string        `koanf:"username"`
	AvatarURL    string        `koanf:"avatar_url" validate:"omitempty,url"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit    float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst        int           `koanf:"burst" validate:"gt=0"`
}

// StoreConfig selects and configures the mapping store backend.
type StoreConfig struct {
	Driver   string         `koanf:"driver" validate:"oneof=file sqlite postgres"`
	Path     string         `koanf:"path" validate:"required_unless=Driver postgres"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// PostgresConfig configures the postgres store.
type PostgresConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns" validate:"gte=1"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
}

// LockConfig selects the run guard.
type LockConfig struct {
	Driver string        `koanf:"driver" validate:"oneof=file redis none"`
	Path   string        `koanf:"path" validate:"required_if=Driver file"`
	Redis  RedisConfig   `koanf:"redis"`
	TTL    time.Duration `koanf:"ttl" validate:"gt=0"`
}

// RedisConfig configures the redis lock.
type RedisConfig struct {
	URL string `koanf:"url"`
	Key string `koanf:"key"`
}

// MirrorConfig tunes the reconciler.
type MirrorConfig struct {
	IgnoreDays  int           `koanf:"ignore_days" validate:"gte=1"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"gt=0"`
}

// IgnoreWindow returns the freshness window.
func (c MirrorConfig) IgnoreWindow() time.Duration {
	return time.Duration(c.IgnoreDays) * 24 * time.Hour
}

// SchedulerConfig configures periodic passes for the serve command.
type SchedulerConfig struct {
	Schedule   string `koanf:"schedule" validate:"required"`
	RunOnStart bool   `koanf:"run_on_start"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required,numeric"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Feed: FeedConfig{
			BaseURL: "https://discordstatus.com",
			Timeout: 15 * time.Second,
		},
		Discord: DiscordConfig{
			BaseURL:   "https://discord.com/api/v10",
			Timeout:   10 * time.Second,
			RateLimit: 2,
			Burst:     5,
		},
		Store: StoreConfig{
			Driver: "file",
			Path:   "./messages.json",
			Postgres: PostgresConfig{
				MaxConns:        4,
				ConnMaxLifetime: 30 * time.Minute,
				ConnectAttempts: 5,
				ConnectTimeout:  30 * time.Second,
			},
		},
		Lock: LockConfig{
			Driver: "file",
			Path:   "./incident-mirror.lock",
			TTL:    10 * time.Minute,
			Redis: RedisConfig{
				Key: "incident-mirror:pass",
			},
		},
		Mirror: MirrorConfig{
			IgnoreDays:  30,
			CallTimeout: 15 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Schedule:   "@every 5m",
			RunOnStart: true,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "9090",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps MIRROR_STORE__POSTGRES__URL to store.postgres.url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// minLeaseCalls is how many call timeouts a redis lease must outlast.
const minLeaseCalls = 4

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Store.Driver == "postgres" && c.Store.Postgres.URL == "" {
		errs = append(errs, errors.New("store.postgres.url is required for the postgres driver"))
	}
	if c.Lock.Driver == "redis" && c.Lock.Redis.URL == "" {
		errs = append(errs, errors.New("lock.redis.url is required for the redis driver"))
	}
	// The lease is renewed before each incident; one incident may take a
	// fetch, an edit or send, and a rate-limit retry.
	if c.Lock.Driver == "redis" && c.Lock.TTL < minLeaseCalls*c.Mirror.CallTimeout {
		errs = append(errs, fmt.Errorf("lock.ttl must be at least %d x mirror.call_timeout (%s)",
			minLeaseCalls, minLeaseCalls*c.Mirror.CallTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
