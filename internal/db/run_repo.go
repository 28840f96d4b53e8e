package db

import (
	"context"

	"weatheringest/internal/types"
)

// RunRepository maintains the ingest_runs ledger: one row per committed
// invocation.
type RunRepository struct {
	db DBTX
}

// NewRunRepository creates a RunRepository.
func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

// WithDB returns a repository bound to another connection.
func (r *RunRepository) WithDB(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

// Record appends the report of a finished run.
func (r *RunRepository) Record(ctx context.Context, report types.IngestReport) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingest_runs
			(run_id, bucket, object_key, rows_inserted, rows_skipped, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.RunID,
		report.Bucket,
		report.Key,
		report.RowsInserted,
		report.RowsSkipped,
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record ingest run", err)
	}
	return nil
}

// CountForObject returns how many committed runs already loaded the object.
func (r *RunRepository) CountForObject(ctx context.Context, ref types.ObjectRef) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM ingest_runs WHERE bucket = $1 AND object_key = $2`,
		ref.Bucket, ref.Key,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count prior ingest runs", err)
	}
	return n, nil
}
