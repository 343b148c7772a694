// Package config loads the exporter configuration from YAML, the process
// environment and optional .env files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

// Config is the complete exporter configuration.
type Config struct {
	Exposition ExpositionConfig `yaml:"exposition"`
	Sources    SourcesConfig    `yaml:"sources"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Journal    JournalConfig    `yaml:"journal"`
	Logging    LoggingConfig    `yaml:"logging"`
	Retry      RetryConfig      `yaml:"retry"`
}

// ExpositionConfig controls the metrics HTTP endpoint.
type ExpositionConfig struct {
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	OpenMetrics    bool          `yaml:"open_metrics"`
	RuntimeMetrics bool          `yaml:"runtime_metrics"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// SourcesConfig lists the transports Buildbot messages arrive on.
type SourcesConfig struct {
	NATS  NATSSourceConfig  `yaml:"nats"`
	Redis RedisSourceConfig `yaml:"redis"`
}

// NATSSourceConfig subscribes to a NATS subject. When Stream is set the
// subscription is a durable JetStream consumer instead of a core subscription.
type NATSSourceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	Prefix     string `yaml:"prefix"`
	QueueGroup string `yaml:"queue_group"`
	ClientName string `yaml:"client_name"`
	Stream     string `yaml:"stream"`
	Durable    string `yaml:"durable"`
}

// RedisSourceConfig pattern-subscribes to Redis pub/sub channels.
type RedisSourceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Pattern  string `yaml:"pattern"`
	Prefix   string `yaml:"prefix"`
}

// DispatchConfig sizes the bus subscription feeding the tracker.
type DispatchConfig struct {
	Buffer int `yaml:"buffer"`
}

// TrackerConfig controls in-flight housekeeping. A zero StaleAfter keeps
// in-flight records until their finish event arrives.
type TrackerConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// JournalConfig enables the SQLite anomaly journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// RetryConfig is the reconnect policy for transports.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = NewDefaultApplier().ApplyDefaults(cfg)
	return cfg
}

// Load reads configuration from path. Variables from .env and .env.local are
// loaded first without overriding the process environment, ${VAR} references
// in the file are expanded, defaults are applied, BUILDBOT_EXPORTER_*
// overrides win last, and the result is validated.
//
// An empty path, or a missing file when required is false, yields defaults.
func Load(path string, required bool) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(data, cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").
					WithContext("path", path).
					Build()
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read configuration").
				WithContext("path", path).
				Build()
		}
	}

	if err := normalize(cfg); err != nil {
		return nil, err
	}
	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to apply defaults").Build()
	}
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("yaml: %w", err)
	}
	return nil
}

// normalize case-folds enumerations before defaults are applied. Unknown
// values are rejected rather than silently replaced.
func normalize(cfg *Config) error {
	if cfg.Logging.Level != "" {
		level, err := logLevels.Parse(string(cfg.Logging.Level))
		if err != nil {
			return invalid("logging.level", err)
		}
		cfg.Logging.Level = level
	}
	if cfg.Logging.Format != "" {
		format, err := logFormats.Parse(string(cfg.Logging.Format))
		if err != nil {
			return invalid("logging.format", err)
		}
		cfg.Logging.Format = format
	}
	if cfg.Retry.Backoff != "" {
		mode, err := retryBackoffs.Parse(string(cfg.Retry.Backoff))
		if err != nil {
			return invalid("retry.backoff", err)
		}
		cfg.Retry.Backoff = mode
	}
	return nil
}

func invalid(field string, cause error) error {
	return ferrors.ValidationError("invalid configuration value").
		WithContext("field", field).
		WithCause(cause).
		Build()
}
