// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers an optional YAML file and PPV_* env vars on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Host is the bind address; empty or 0.0.0.0 listens on all interfaces.
	Host string `koanf:"host"`

	// Port is the TCP port the HTTP server listens on.
	Port int `koanf:"port"`

	// ModelPath is the location of the serialized model artifact.
	ModelPath string `koanf:"model_path"`

	// PredictionCacheSize bounds the per-record prediction cache. Zero disables it.
	PredictionCacheSize int `koanf:"prediction_cache_size"`

	// GranularStatus maps parse errors to 400 and an unloaded model to 503
	// instead of the uniform 500.
	GranularStatus bool `koanf:"granular_status"`

	// MaxFormBytes caps the size of a /predict request body.
	MaxFormBytes int64 `koanf:"max_form_bytes"`

	ReadTimeoutMS     int `koanf:"read_timeout_ms"`
	WriteTimeoutMS    int `koanf:"write_timeout_ms"`
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Host:                "0.0.0.0",
		Port:                8080,
		ModelPath:           "hybrid_model.json",
		PredictionCacheSize: 1024,
		GranularStatus:      false,
		MaxFormBytes:        1 << 20,
		ReadTimeoutMS:       10_000,
		WriteTimeoutMS:      10_000,
		ShutdownTimeoutMS:   30_000,
	}
}

// Addr joins Host and Port into a listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ReadTimeout returns the HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the HTTP write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	case strings.TrimSpace(c.ModelPath) == "":
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	case c.PredictionCacheSize < 0:
		return fmt.Errorf("%w: prediction_cache_size must not be negative", ErrInvalidConfig)
	case c.MaxFormBytes <= 0:
		return fmt.Errorf("%w: max_form_bytes must be positive", ErrInvalidConfig)
	case c.ReadTimeoutMS <= 0 || c.WriteTimeoutMS <= 0 || c.ShutdownTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
