package eventstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := anomaly.New(anomaly.OrphanFinish, "builds", "7", "finish without start", base)
	second := anomaly.New(anomaly.DuplicateStart, "workers", "3", "already connected", base.Add(time.Second))
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, second.ID, entries[0].ID)
	require.Equal(t, anomaly.DuplicateStart, entries[0].Kind)
	require.Equal(t, "workers", entries[0].Entity)
	require.Equal(t, "3", entries[0].Identity)
	require.True(t, second.At.Equal(entries[0].At))
	require.Greater(t, entries[0].Seq, entries[1].Seq)

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, second.ID, limited[0].ID)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRange(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		a := anomaly.New(anomaly.StaleInFlight, "builds", "b", "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Append(ctx, a))
	}

	entries, err := store.Range(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, entries[0].At.Equal(base.Add(time.Minute)))
	require.True(t, entries[2].At.Equal(base.Add(3*time.Minute)))

	empty, err := store.Range(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCountByKind(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()
	now := time.Now()

	store.Record(ctx, anomaly.New(anomaly.OrphanFinish, "builds", "1", "", now))
	store.Record(ctx, anomaly.New(anomaly.OrphanFinish, "steps", "1/2", "", now))
	store.Record(ctx, anomaly.New(anomaly.DecodeFailure, "", "", "bad json", now))

	counts, err := store.CountByKind(ctx)
	require.NoError(t, err)
	require.Equal(t, map[anomaly.Kind]int{
		anomaly.OrphanFinish:  2,
		anomaly.DecodeFailure: 1,
	}, counts)
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	store := newMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store.Record(ctx, anomaly.New(anomaly.DispatchPanic, "builds", "9", "boom", time.Now()))

	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPersistentStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "anomalies.db")
	ctx := t.Context()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, anomaly.New(anomaly.NegativeDuration, "builds", "4", "", time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, anomaly.NegativeDuration, entries[0].Kind)
}

func TestAppendAfterCloseIsJournalError(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Append(t.Context(), anomaly.New(anomaly.OrphanFinish, "builds", "1", "", time.Now()))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAppendFailed))
}
