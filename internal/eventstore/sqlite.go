package eventstore

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

const selectColumns = "SELECT id, anomaly_id, kind, entity, identity, detail, occurred_at FROM anomalies"

// SQLiteStore implements Store using SQLite. It also implements
// anomaly.Sink so it can sit directly in the anomaly fan-out.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *slog.Logger
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ anomaly.Sink = (*SQLiteStore)(nil)
)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used to report failed Record calls.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLiteStore opens (creating if needed) the journal at dbPath.
// Use MemoryPath for an in-memory journal.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "failed to create journal directory").
				WithContext("path", dbPath).
				Build()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrDatabaseOpenFailed.Message()).
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrInitializeSchemaFailed.Message()).
			WithContext("path", dbPath).
			Build()
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		anomaly_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity TEXT NOT NULL,
		identity TEXT NOT NULL,
		detail TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_anomalies_kind ON anomalies(kind);
	CREATE INDEX IF NOT EXISTS idx_anomalies_occurred_at ON anomalies(occurred_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds an anomaly to the journal.
func (s *SQLiteStore) Append(ctx context.Context, a anomaly.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO anomalies (anomaly_id, kind, entity, identity, detail, occurred_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, string(a.Kind), a.Entity, a.Identity, a.Detail, a.At.UnixNano(),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryJournal, ErrAppendFailed.Message()).
			WithContext("anomaly_id", a.ID).
			WithContext("kind", string(a.Kind)).
			Build()
	}
	return nil
}

// Record implements anomaly.Sink. Failures are logged, never returned.
func (s *SQLiteStore) Record(ctx context.Context, a anomaly.Anomaly) {
	if err := s.Append(context.WithoutCancel(ctx), a); err != nil {
		s.logger.ErrorContext(ctx, "Failed to journal anomaly",
			logfields.Anomaly(string(a.Kind)),
			logfields.Identity(a.Identity),
			logfields.Error(err))
	}
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrQueryFailed.Message()).Build()
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// Range returns entries that occurred within [start, end], oldest first.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" WHERE occurred_at >= ? AND occurred_at <= ? ORDER BY occurred_at, id",
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrQueryFailed.Message()).Build()
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// CountByKind returns the number of journaled anomalies per kind.
func (s *SQLiteStore) CountByKind(ctx context.Context) (map[anomaly.Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM anomalies GROUP BY kind")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrQueryFailed.Message()).Build()
	}
	defer rows.Close()

	counts := make(map[anomaly.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrScanFailed.Message()).Build()
		}
		counts[anomaly.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrScanFailed.Message()).Build()
	}
	return counts, nil
}

func (s *SQLiteStore) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var occurredAt int64

		err := rows.Scan(&e.Seq, &e.ID, &kind, &e.Entity, &e.Identity, &e.Detail, &occurredAt)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrScanFailed.Message()).Build()
		}
		e.Kind = anomaly.Kind(kind)
		e.At = time.Unix(0, occurredAt).UTC()

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, ErrScanFailed.Message()).Build()
	}

	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
