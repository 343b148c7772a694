package config

import (
	"strings"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

// Validate checks a fully defaulted configuration.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	for _, check := range []func() error{
		cv.validateExposition,
		cv.validateSources,
		cv.validateDispatch,
		cv.validateTracker,
		cv.validateJournal,
		cv.validateRetry,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func fieldError(field, message string) error {
	return ferrors.ValidationError(message).WithContext("field", field).Build()
}

func (cv *configurationValidator) validateExposition() error {
	e := cv.config.Exposition
	if strings.TrimSpace(e.Address) == "" {
		return fieldError("exposition.address", "listen address is required")
	}
	if !strings.HasPrefix(e.Path, "/") {
		return fieldError("exposition.path", "metrics path must start with /")
	}
	if e.Path == "/" || e.Path == "/healthz" {
		return fieldError("exposition.path", "metrics path collides with a built-in endpoint")
	}
	if e.ReadTimeout < 0 || e.WriteTimeout < 0 || e.IdleTimeout < 0 {
		return fieldError("exposition", "timeouts cannot be negative")
	}
	return nil
}

func (cv *configurationValidator) validateSources() error {
	n := cv.config.Sources.NATS
	if n.Enabled {
		if strings.TrimSpace(n.URL) == "" {
			return fieldError("sources.nats.url", "NATS URL is required when the NATS source is enabled")
		}
		if strings.TrimSpace(n.Subject) == "" {
			return fieldError("sources.nats.subject", "NATS subject is required")
		}
		if n.Stream != "" && n.QueueGroup != "" {
			return fieldError("sources.nats.queue_group", "queue groups do not apply to JetStream consumers")
		}
	}
	r := cv.config.Sources.Redis
	if r.Enabled {
		if strings.TrimSpace(r.Addr) == "" {
			return fieldError("sources.redis.addr", "Redis address is required when the Redis source is enabled")
		}
		if r.DB < 0 {
			return fieldError("sources.redis.db", "Redis database cannot be negative")
		}
	}
	return nil
}

func (cv *configurationValidator) validateDispatch() error {
	if cv.config.Dispatch.Buffer < 0 {
		return fieldError("dispatch.buffer", "dispatch buffer cannot be negative")
	}
	return nil
}

func (cv *configurationValidator) validateTracker() error {
	t := cv.config.Tracker
	if t.StaleAfter < 0 {
		return fieldError("tracker.stale_after", "stale_after cannot be negative")
	}
	if t.SweepInterval <= 0 {
		return fieldError("tracker.sweep_interval", "sweep_interval must be positive")
	}
	if t.StatsInterval <= 0 {
		return fieldError("tracker.stats_interval", "stats_interval must be positive")
	}
	return nil
}

func (cv *configurationValidator) validateJournal() error {
	if cv.config.Journal.Enabled && strings.TrimSpace(cv.config.Journal.Path) == "" {
		return fieldError("journal.path", "journal path is required when the journal is enabled")
	}
	return nil
}

func (cv *configurationValidator) validateRetry() error {
	r := cv.config.Retry
	if r.Initial <= 0 || r.Max <= 0 {
		return fieldError("retry", "retry delays must be positive")
	}
	if r.MaxRetries < 0 {
		return fieldError("retry.max_retries", "max_retries cannot be negative")
	}
	return nil
}
