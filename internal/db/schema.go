package db

import (
	"context"
	"fmt"
	"strings"

	"weatheringest/internal/types"
)

// schemaTemplate creates the observation table and the run ledger. The unique
// index on record_date is only created when dedupe is enabled; without it the
// table keeps one row per ingested line, duplicates included.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
    record_date   DATE             NOT NULL,
    temp_max      DOUBLE PRECISION NOT NULL,
    temp_min      DOUBLE PRECISION NOT NULL,
    temp_avg      DOUBLE PRECISION NOT NULL,
    departure     DOUBLE PRECISION NOT NULL,
    hdd           INTEGER          NOT NULL,
    cdd           INTEGER          NOT NULL,
    precipitation TEXT             NOT NULL,
    new_snow      DOUBLE PRECISION NOT NULL,
    anomaly       TEXT             NOT NULL
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (record_date DESC);

CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id        UUID        PRIMARY KEY,
    bucket        TEXT        NOT NULL,
    object_key    TEXT        NOT NULL,
    rows_inserted INTEGER     NOT NULL,
    rows_skipped  INTEGER     NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_object ON ingest_runs (bucket, object_key);
`

const dedupeIndexTemplate = `CREATE UNIQUE INDEX IF NOT EXISTS %[2]s ON %[1]s (record_date);`

// EnsureSchema creates the tables used by the ingester if they are missing.
// It is meant for local runs; deployed databases are provisioned separately.
func EnsureSchema(ctx context.Context, db DBTX, table string, dedupeByDate bool) error {
	base := indexBase(table)
	ddl := fmt.Sprintf(schemaTemplate, quoteIdent(table), quoteIdent(base+"_record_date_idx"))
	if dedupeByDate {
		ddl += fmt.Sprintf(dedupeIndexTemplate, quoteIdent(table), quoteIdent(base+"_record_date_key"))
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure schema", err)
	}
	return nil
}

// indexBase strips the schema qualifier; index names live in the table's
// schema and cannot be qualified.
func indexBase(table string) string {
	return table[strings.LastIndexByte(table, '.')+1:]
}
