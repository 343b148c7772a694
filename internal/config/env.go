package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// Environment variables overriding file settings.
const (
	EnvListen    = "BUILDBOT_EXPORTER_LISTEN"
	EnvNATSURL   = "BUILDBOT_EXPORTER_NATS_URL"
	EnvRedisAddr = "BUILDBOT_EXPORTER_REDIS_ADDR"
	EnvLogLevel  = "BUILDBOT_EXPORTER_LOG_LEVEL"
)

var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads .env and .env.local when present. godotenv.Load never
// overrides variables already set in the process environment.
func loadEnvFiles() {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Failed to load env file", slog.String("path", path), logfields.Error(err))
			}
			continue
		}
		slog.Debug("Loaded environment variables", slog.String("path", path))
	}
}

// applyEnvOverrides applies BUILDBOT_EXPORTER_* variables. A NATS URL or a
// Redis address given this way also enables the matching source.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Exposition.Address = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNATSURL)); v != "" {
		cfg.Sources.NATS.URL = v
		cfg.Sources.NATS.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Sources.Redis.Addr = v
		cfg.Sources.Redis.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = NormalizeLogLevel(v)
	}
}
