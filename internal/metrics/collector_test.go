package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorExposesSnapshot(t *testing.T) {
	r := NewRegistry()
	r.MustDeclare(
		Desc{Name: "buildbot_workers_running_total", Help: "Total number of running workers", Kind: KindGauge},
		Desc{Name: "buildbot_builds_results_total", Help: "Finished builds by result", Kind: KindCounter, LabelNames: []string{"result"}},
	)
	require.NoError(t, r.SetGauge("buildbot_workers_running_total", nil, 2))
	require.NoError(t, r.IncrementCounter("buildbot_builds_results_total", []string{"failure"}, 1))

	expected := `
# HELP buildbot_builds_results_total Finished builds by result
# TYPE buildbot_builds_results_total counter
buildbot_builds_results_total{result="failure"} 1
# HELP buildbot_workers_running_total Total number of running workers
# TYPE buildbot_workers_running_total gauge
buildbot_workers_running_total 2
`
	require.NoError(t, testutil.CollectAndCompare(NewCollector(r), strings.NewReader(expected)))
}

func TestCollectorSkipsEmptyFamilies(t *testing.T) {
	r := NewRegistry()
	r.MustDeclare(Desc{Name: "unused", Help: "h", Kind: KindGauge, LabelNames: []string{"a"}})

	require.Equal(t, 0, testutil.CollectAndCount(NewCollector(r)))
}
