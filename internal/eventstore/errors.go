package eventstore

// Sentinel errors for journal operations. Callers match them with errors.Is.

import (
	"git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.JournalError("could not open anomaly journal database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.JournalError("failed to initialize anomaly journal schema").Build()

	// ErrAppendFailed indicates appending an anomaly failed.
	ErrAppendFailed = errors.JournalError("failed to append anomaly to journal").Build()

	// ErrQueryFailed indicates querying the journal failed.
	ErrQueryFailed = errors.JournalError("failed to query anomaly journal").Build()

	// ErrScanFailed indicates scanning journal rows failed.
	ErrScanFailed = errors.JournalError("failed to scan anomaly journal rows").Build()
)
