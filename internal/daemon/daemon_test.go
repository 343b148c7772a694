package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/eventstore"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
)

// fakeSource ingests a fixed batch of messages on Start.
type fakeSource struct {
	ingest   func() subscriber.Ingester
	messages []subscriber.Envelope
	startErr error
	stopped  bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	for _, env := range f.messages {
		if err := f.ingest().Ingest(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Exposition.Address = "127.0.0.1:0"
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "anomalies.db")
	return cfg
}

func envelope(payload string, key ...string) subscriber.Envelope {
	return subscriber.NewEnvelope("fake", key, []byte(payload))
}

func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{messages: []subscriber.Envelope{
		envelope(`{"builderid": 1, "name": "linux"}`, "builders", "1", "started"),
		envelope(`{"buildid": 7, "builderid": 1, "workerid": 2, "started_at": 100}`, "builds", "7", "new"),
		envelope(`{"buildid": 7, "builderid": 1, "workerid": 2, "complete_at": 112, "results": 0}`, "builds", "7", "finished"),
		envelope(`{"buildid": 8, "complete_at": 112, "results": 0}`, "builds", "8", "finished"),
	}}

	d, err := New(cfg, Options{Sources: []subscriber.Source{src}})
	require.NoError(t, err)
	src.ingest = func() subscriber.Ingester { return d.pipeline.Subscriber }

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	require.Equal(t, StatusRunning, d.GetStatus())
	require.Error(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		_, applied := d.pipeline.Registry.Snapshot().Value("buildbot_exporter_anomalies_total", "orphan_finish")
		return applied
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, uint64(4), d.IngestStats().Published)
	require.Zero(t, d.InFlightCounts()["builds"])

	body := scrape(t, d.Addr())
	require.Contains(t, body, `buildbot_builds_duration_seconds{builder_id="1",worker_id="2"} 12`)
	require.Contains(t, body, `buildbot_builders_running{builder_id="1",builder_name="linux"} 1`)
	require.Contains(t, body, `buildbot_exporter_anomalies_total{kind="orphan_finish"} 1`)

	require.NoError(t, d.Stop(ctx))
	require.Equal(t, StatusStopped, d.GetStatus())
	require.True(t, src.stopped)
	require.NoError(t, d.Stop(ctx))

	journal, err := eventstore.NewSQLiteStore(cfg.Journal.Path)
	require.NoError(t, err)
	defer func() { _ = journal.Close() }()
	entries, err := journal.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "8", entries[0].Identity)
}

func TestDaemonStartFailureStopsStartedComponents(t *testing.T) {
	cfg := testConfig(t)
	ok := &fakeSource{ingest: func() subscriber.Ingester { return nil }}
	failing := &fakeSource{startErr: errors.New("connection refused")}

	d, err := New(cfg, Options{Sources: []subscriber.Source{ok, failing}})
	require.NoError(t, err)

	err = d.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusError, d.GetStatus())
	require.True(t, ok.stopped)
	require.False(t, failing.stopped)
}

func TestReloadConfigChangesLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	level := new(slog.LevelVar)

	d, err := New(cfg, Options{Sources: []subscriber.Source{}, LevelVar: level})
	require.NoError(t, err)

	next := *cfg
	next.Logging.Level = config.LogLevelDebug
	next.Exposition.Address = ":9999"
	require.NoError(t, d.ReloadConfig(context.Background(), &next))

	require.Equal(t, slog.LevelDebug, level.Level())
	require.Equal(t, config.LogLevelDebug, d.GetConfig().Logging.Level)
	require.Equal(t, "127.0.0.1:0", d.GetConfig().Exposition.Address)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	d, err := New(cfg, Options{Sources: []subscriber.Source{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 5*time.Second) }()

	require.Eventually(t, func() bool { return d.GetStatus() == StatusRunning }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	require.Equal(t, StatusStopped, d.GetStatus())
}
