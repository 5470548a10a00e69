// Package config loads and validates the sync daemon configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
)

// isNotFound reports whether err means no config file exists on the
// search path.
func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

// Config is the complete daemon configuration.
type Config struct {
	// Listen is the local address the REST/WebSocket API binds to.
	Listen string `mapstructure:"listen"`

	// DataDir holds the durable queue database.
	DataDir string `mapstructure:"data_dir"`

	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

// RemoteConfig describes the authoritative cart backend.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	UserID         string `mapstructure:"user_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the remote request timeout as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// SyncConfig tunes the replay loop.
type SyncConfig struct {
	MaxAttempts          int `mapstructure:"max_attempts"`
	BackoffBaseSeconds   int `mapstructure:"backoff_base_seconds"`
	BackoffMaxSeconds    int `mapstructure:"backoff_max_seconds"`
	ProbeIntervalSeconds int `mapstructure:"probe_interval_seconds"`
	DrainIntervalSeconds int `mapstructure:"drain_interval_seconds"`
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "listen address cannot be empty")
	}
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "data_dir cannot be empty")
	}
	if c.Remote.BaseURL == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "remote.base_url is required")
	}
	if c.Sync.MaxAttempts <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid,
			fmt.Sprintf("sync.max_attempts must be positive, got %d", c.Sync.MaxAttempts))
	}
	if c.Sync.BackoffBaseSeconds <= 0 || c.Sync.BackoffMaxSeconds < c.Sync.BackoffBaseSeconds {
		return apperrors.New(apperrors.ErrConfigInvalid, "sync backoff schedule is inconsistent")
	}
	if c.Sync.ProbeIntervalSeconds <= 0 || c.Sync.DrainIntervalSeconds <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "sync intervals must be positive")
	}
	return nil
}

// setDefaults registers default values on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:8787")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.backoff_base_seconds", 60)
	v.SetDefault("sync.backoff_max_seconds", 3600)
	v.SetDefault("sync.probe_interval_seconds", 30)
	v.SetDefault("sync.drain_interval_seconds", 60)
}

// Load reads and parses a configuration file. If path is empty, default
// locations are searched; a missing file falls back to defaults plus
// CARTSYNC_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CARTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cartsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cartsync")
	}

	if err := v.ReadInConfig(); err != nil {
		switch {
		case path != "" && os.IsNotExist(err):
			return nil, apperrors.Wrap(apperrors.ErrConfigNotFound, "config file not found", err)
		case path == "" && isNotFound(err):
			// No file anywhere on the search path: run on defaults + env.
		default:
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
