package config

import (
	"errors"
	"io/fs"
	"os"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

const exampleConfig = `# buildbot-exporter configuration
exposition:
  address: ":9101"
  path: /metrics
  open_metrics: false
  runtime_metrics: false

sources:
  nats:
    enabled: true
    url: ${NATS_URL}
    subject: buildbot.>
    prefix: buildbot
    # queue_group: buildbot-exporter
    # stream: BUILDBOT
  redis:
    enabled: false
    addr: 127.0.0.1:6379
    pattern: buildbot.*
    prefix: buildbot

dispatch:
  buffer: 256

tracker:
  # drop builds, steps and requests that never finish; 0 keeps them forever
  stale_after: 24h
  sweep_interval: 1m
  stats_interval: 5m

journal:
  enabled: false
  path: buildbot-exporter-anomalies.db

logging:
  level: info
  format: text

retry:
  backoff: exponential
  initial: 1s
  max: 30s
  max_retries: 5
`

// Init writes an example configuration file to path. An existing file is
// only replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to inspect configuration path").Build()
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write configuration").
			WithContext("path", path).
			Build()
	}
	return nil
}
