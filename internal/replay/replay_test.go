package replay

import (
	"bytes"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
)

func TestRunProducesExposition(t *testing.T) {
	f, err := os.Open("testdata/build.jsonl")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out bytes.Buffer
	res, err := Run(context.Background(), f, &out, Options{Prefix: "buildbot"})
	require.NoError(t, err)

	require.Equal(t, 9, res.Lines)
	require.Equal(t, 3, res.Skipped)
	require.Equal(t, uint64(6), res.Published)
	require.Zero(t, res.Failed)

	text := out.String()
	require.Contains(t, text, "# TYPE buildbot_builds_duration_seconds gauge")
	require.Contains(t, text, `buildbot_builds_duration_seconds{builder_id="1",worker_id="2"} 30`)
	require.Contains(t, text, `buildbot_builds_success{builder_id="1",worker_id="2"} 1`)
	require.Contains(t, text, `buildbot_steps_duration_seconds{builder_id="1",step_name="git",step_number="0",worker_id="2"} 4`)
	require.Contains(t, text, `buildbot_workers_running{worker_id="2",worker_name="docker"} 1`)
	require.Contains(t, text, "buildbot_workers_running_total 1")
	require.Contains(t, text, `buildbot_exporter_anomalies_total{kind="orphan_finish"} 1`)
	require.NotContains(t, text, "go_goroutines")
}

func TestRunForwardsAnomalies(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []anomaly.Kind
	)
	sink := anomaly.SinkFunc(func(_ context.Context, a anomaly.Anomaly) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, a.Kind)
	})

	input := strings.Join([]string{
		`{"routing_key": "builds.1.finished", "payload": {"buildid": 1, "complete_at": 10}}`,
		`{"routing_key": "builds.1.finished", "payload": "not an object"}`,
	}, "\n")

	var out bytes.Buffer
	res, err := Run(context.Background(), strings.NewReader(input), &out, Options{Sinks: []anomaly.Sink{sink}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Failed)
	mu.Lock()
	defer mu.Unlock()
	slices.Sort(kinds)
	require.Equal(t, []anomaly.Kind{anomaly.DecodeFailure, anomaly.OrphanFinish}, kinds)
}

func TestRunOpenMetrics(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(context.Background(), strings.NewReader(""), &out, Options{OpenMetrics: true})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out.String(), "# EOF\n"))
	require.Contains(t, out.String(), "buildbot_exporter_build_info")
}
