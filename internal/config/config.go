// Package config loads the demo server configuration from an optional YAML
// file and CSRFGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config holds all configuration for the demo server
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	CSRF struct {
		Limit              int      `mapstructure:"limit"`
		SessionKey         string   `mapstructure:"session_key"`
		FormField          string   `mapstructure:"form_field"`
		HeaderName         string   `mapstructure:"header_name"`
		Methods            []string `mapstructure:"methods"`
		EnforceOriginCheck bool     `mapstructure:"enforce_origin_check"`
		AllowedOrigin      string   `mapstructure:"allowed_origin"`
	} `mapstructure:"csrf"`

	Session struct {
		Backend      string `mapstructure:"backend"`
		CookieName   string `mapstructure:"cookie_name"`
		CookieSecure bool   `mapstructure:"cookie_secure"`
		CookieMaxAge int    `mapstructure:"cookie_max_age"` // seconds
		MemorySize   int    `mapstructure:"memory_size"`

		Redis struct {
			Addr     string        `mapstructure:"addr"`
			Password string        `mapstructure:"password"`
			DB       int           `mapstructure:"db"`
			PoolSize int           `mapstructure:"pool_size"`
			Prefix   string        `mapstructure:"prefix"`
			TTL      time.Duration `mapstructure:"ttl"`
		} `mapstructure:"redis"`

		NATS struct {
			URL    string        `mapstructure:"url"`
			Bucket string        `mapstructure:"bucket"`
			TTL    time.Duration `mapstructure:"ttl"`
		} `mapstructure:"nats"`
	} `mapstructure:"session"`
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("csrf.limit", 50)
	v.SetDefault("csrf.session_key", "csrf.token")
	v.SetDefault("csrf.form_field", "_csrf")
	v.SetDefault("csrf.header_name", "")
	v.SetDefault("csrf.methods", []string{"POST", "PUT", "DELETE"})
	v.SetDefault("csrf.enforce_origin_check", false)
	v.SetDefault("csrf.allowed_origin", "")

	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.cookie_name", "session_id")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.cookie_max_age", 86400)
	v.SetDefault("session.memory_size", 10000)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.pool_size", 10)
	v.SetDefault("session.redis.prefix", "session:")
	v.SetDefault("session.redis.ttl", 24*time.Hour)
	v.SetDefault("session.nats.url", "nats://localhost:4222")
	v.SetDefault("session.nats.bucket", "CSRF_SESSIONS")
	v.SetDefault("session.nats.ttl", 24*time.Hour)
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("CSRFGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load loads configuration from path (when not empty), then from
// ./config.yaml or ./config/config.yaml when present, and finally from the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	loadFromEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.CSRF.Limit <= 0 {
		return fmt.Errorf("csrf.limit must be positive, got %d", c.CSRF.Limit)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.Session.Backend {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}
	return nil
}
