package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls     atomic.Int32
	olderThan atomic.Int64
}

func (c *countingSweeper) Sweep(_ context.Context, olderThan time.Duration, _ time.Time) int {
	c.calls.Add(1)
	c.olderThan.Store(int64(olderThan))
	return 1
}

func TestSchedulerRunsSweepAndStats(t *testing.T) {
	s, err := NewScheduler(nil)
	require.NoError(t, err)

	sweeper := &countingSweeper{}
	_, err = s.ScheduleSweep(20*time.Millisecond, time.Hour, sweeper)
	require.NoError(t, err)

	var reports atomic.Int32
	_, err = s.ScheduleStats(20*time.Millisecond, func(context.Context) { reports.Add(1) })
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool {
		return sweeper.calls.Load() > 0 && reports.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, int64(time.Hour), sweeper.olderThan.Load())
}

func TestSchedulerStatsPanicIsContained(t *testing.T) {
	s, err := NewScheduler(nil)
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = s.ScheduleStats(20*time.Millisecond, func(context.Context) {
		calls.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}
