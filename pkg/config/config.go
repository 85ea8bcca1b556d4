// Package config provides the configuration system for Tributary.
// Engine settings load from defaults, an optional YAML file, and
// TRIBUTARY_-prefixed environment variables, in increasing precedence.
// Pipeline definitions (see pipeline.go) are plain YAML documents.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/tributary/pkg/errors"
)

// EngineConfig controls the dataflow engine's process-wide defaults.
// Every knob can also be set per graph through GraphOptions.
type EngineConfig struct {
	// DefaultBufferCapacity is the buffer capacity for nodes that do
	// not declare an explicit one. Must be > 0.
	DefaultBufferCapacity int `mapstructure:"default_buffer_capacity" yaml:"default_buffer_capacity"`

	// CancelGracePeriod bounds how long the cancellation coordinator
	// waits for a node's completion handle to settle on its own
	// before forcing it to Cancelled.
	CancelGracePeriod time.Duration `mapstructure:"cancel_grace_period" yaml:"cancel_grace_period"`

	// ErrorHandoffTimeout bounds how long an error channel may block
	// the main path while handing a rejected row to its sink.
	ErrorHandoffTimeout time.Duration `mapstructure:"error_handoff_timeout" yaml:"error_handoff_timeout"`
}

// LoggingConfig controls process-level logging.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
}

// Config is the root configuration document.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultBufferCapacity: 1000,
			CancelGracePeriod:     5 * time.Second,
			ErrorHandoffTimeout:   time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads configuration from the optional file path, then applies
// environment overrides. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("engine.default_buffer_capacity", def.Engine.DefaultBufferCapacity)
	v.SetDefault("engine.cancel_grace_period", def.Engine.CancelGracePeriod)
	v.SetDefault("engine.error_handoff_timeout", def.Engine.ErrorHandoffTimeout)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.development", def.Logging.Development)
	v.SetDefault("logging.encoding", def.Logging.Encoding)

	v.SetEnvPrefix("TRIBUTARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Engine.DefaultBufferCapacity <= 0 {
		return errors.Newf(errors.ErrorTypeConfig,
			"default_buffer_capacity must be > 0, got %d", c.Engine.DefaultBufferCapacity)
	}
	if c.Engine.CancelGracePeriod <= 0 {
		return errors.New(errors.ErrorTypeConfig, "cancel_grace_period must be > 0")
	}
	if c.Engine.ErrorHandoffTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "error_handoff_timeout must be > 0")
	}
	return nil
}
