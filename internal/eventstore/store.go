// Package eventstore persists lifecycle anomalies in an append-only SQLite
// journal so operators can inspect them after the fact.
package eventstore

import (
	"context"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
)

// Entry is a journaled anomaly with its insertion sequence number.
type Entry struct {
	Seq int64
	anomaly.Anomaly
}

// Store defines the interface for persisting and retrieving anomalies.
type Store interface {
	// Append adds an anomaly to the journal.
	Append(ctx context.Context, a anomaly.Anomaly) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Range returns entries that occurred within [start, end], oldest first.
	Range(ctx context.Context, start, end time.Time) ([]Entry, error)

	// CountByKind returns the number of journaled anomalies per kind.
	CountByKind(ctx context.Context) (map[anomaly.Kind]int, error)

	// Close closes the store and releases resources.
	Close() error
}
