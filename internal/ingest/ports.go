package ingest

import (
	"context"

	"weatheringest/internal/types"
)

// ObjectFetcher retrieves the decoded bytes of a source object.
type ObjectFetcher interface {
	Fetch(ctx context.Context, ref types.ObjectRef) ([]byte, error)
}

// Session is one transactional unit of work against the store. Nothing is
// visible to readers until Commit. Rollback must be safe to call after
// Commit.
type Session interface {
	// PriorRuns counts earlier committed ingestions of the same object.
	PriorRuns(ctx context.Context, ref types.ObjectRef) (int, error)

	// Stage adds one observation to the pending commit. An error wrapping
	// types.ErrSessionAborted poisons the session; any other error only
	// rejects this observation.
	Stage(ctx context.Context, obs types.Observation) error

	// RecordRun writes the run ledger entry in the same transaction.
	RecordRun(ctx context.Context, report types.IngestReport) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionOpener acquires a Session per invocation.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// SessionOpenerFunc adapts a function to SessionOpener.
type SessionOpenerFunc func(ctx context.Context) (Session, error)

// Open calls f(ctx).
func (f SessionOpenerFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// MetricPublisher emits per-invocation metrics. Failures are logged by the
// caller and never fail an ingestion.
type MetricPublisher interface {
	PublishIngest(ctx context.Context, report types.IngestReport) error
	PublishFailure(ctx context.Context, ref types.ObjectRef, code types.ErrorCode) error
}

// SkipReporter forwards skipped rows to an external sink after commit.
type SkipReporter interface {
	ReportSkipped(ctx context.Context, ref types.ObjectRef, runID string, rows []types.SkippedRow) error
}
