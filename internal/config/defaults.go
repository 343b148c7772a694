package config

import (
	"fmt"
	"time"
)

// Default values.
const (
	DefaultAddress       = ":9101"
	DefaultPath          = "/metrics"
	DefaultNATSURL       = "nats://127.0.0.1:4222"
	DefaultPrefix        = "buildbot"
	DefaultRedisAddr     = "127.0.0.1:6379"
	DefaultBuffer        = 256
	DefaultSweepInterval = time.Minute
	DefaultStatsInterval = 5 * time.Minute
	DefaultJournalPath   = "buildbot-exporter-anomalies.db"
)

// ConfigDefaultApplier fills the zero values of one configuration domain.
type ConfigDefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []ConfigDefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []ConfigDefaultApplier{
			&ExpositionDefaultApplier{},
			&SourcesDefaultApplier{},
			&DispatchDefaultApplier{},
			&TrackerDefaultApplier{},
			&JournalDefaultApplier{},
			&LoggingDefaultApplier{},
			&RetryDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// GetApplierByDomain returns a specific domain applier.
func (c *CompositeDefaultApplier) GetApplierByDomain(domain string) ConfigDefaultApplier {
	for _, applier := range c.appliers {
		if applier.Domain() == domain {
			return applier
		}
	}
	return nil
}

type ExpositionDefaultApplier struct{}

func (ExpositionDefaultApplier) Domain() string { return "exposition" }

func (ExpositionDefaultApplier) ApplyDefaults(cfg *Config) error {
	e := &cfg.Exposition
	if e.Address == "" {
		e.Address = DefaultAddress
	}
	if e.Path == "" {
		e.Path = DefaultPath
	}
	if e.ReadTimeout == 0 {
		e.ReadTimeout = 10 * time.Second
	}
	if e.WriteTimeout == 0 {
		e.WriteTimeout = 30 * time.Second
	}
	if e.IdleTimeout == 0 {
		e.IdleTimeout = 60 * time.Second
	}
	return nil
}

type SourcesDefaultApplier struct{}

func (SourcesDefaultApplier) Domain() string { return "sources" }

func (SourcesDefaultApplier) ApplyDefaults(cfg *Config) error {
	n := &cfg.Sources.NATS
	if n.URL == "" {
		n.URL = DefaultNATSURL
	}
	if n.Prefix == "" {
		n.Prefix = DefaultPrefix
	}
	if n.Subject == "" {
		n.Subject = n.Prefix + ".>"
	}
	if n.ClientName == "" {
		n.ClientName = "buildbot-exporter"
	}
	if n.Stream != "" && n.Durable == "" {
		n.Durable = "buildbot-exporter"
	}

	r := &cfg.Sources.Redis
	if r.Addr == "" {
		r.Addr = DefaultRedisAddr
	}
	if r.Prefix == "" {
		r.Prefix = DefaultPrefix
	}
	if r.Pattern == "" {
		r.Pattern = r.Prefix + ".*"
	}
	return nil
}

type DispatchDefaultApplier struct{}

func (DispatchDefaultApplier) Domain() string { return "dispatch" }

func (DispatchDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Dispatch.Buffer == 0 {
		cfg.Dispatch.Buffer = DefaultBuffer
	}
	return nil
}

type TrackerDefaultApplier struct{}

func (TrackerDefaultApplier) Domain() string { return "tracker" }

func (TrackerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Tracker.SweepInterval == 0 {
		cfg.Tracker.SweepInterval = DefaultSweepInterval
	}
	if cfg.Tracker.StatsInterval == 0 {
		cfg.Tracker.StatsInterval = DefaultStatsInterval
	}
	return nil
}

type JournalDefaultApplier struct{}

func (JournalDefaultApplier) Domain() string { return "journal" }

func (JournalDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	return nil
}

type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	return nil
}

type RetryDefaultApplier struct{}

func (RetryDefaultApplier) Domain() string { return "retry" }

func (RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	r := &cfg.Retry
	if r.Backoff == "" {
		r.Backoff = RetryBackoffExponential
	}
	if r.Initial == 0 {
		r.Initial = time.Second
	}
	if r.Max == 0 {
		r.Max = 30 * time.Second
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 5
	}
	return nil
}
