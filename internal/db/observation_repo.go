package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"weatheringest/internal/types"
)

var observationColumns = []string{
	"record_date", "temp_max", "temp_min", "temp_avg", "departure",
	"hdd", "cdd", "precipitation", "new_snow", "anomaly",
}

const insertObservationSQL = `INSERT INTO %s
	(record_date, temp_max, temp_min, temp_avg, departure, hdd, cdd, precipitation, new_snow, anomaly)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const upsertObservationSuffix = `
	ON CONFLICT (record_date) DO UPDATE SET
		temp_max = EXCLUDED.temp_max,
		temp_min = EXCLUDED.temp_min,
		temp_avg = EXCLUDED.temp_avg,
		departure = EXCLUDED.departure,
		hdd = EXCLUDED.hdd,
		cdd = EXCLUDED.cdd,
		precipitation = EXCLUDED.precipitation,
		new_snow = EXCLUDED.new_snow,
		anomaly = EXCLUDED.anomaly`

// ObservationRepository reads and writes the weather table.
type ObservationRepository struct {
	db        DBTX
	table     string
	insertSQL string
}

// NewObservationRepository creates a repository over the given table. With
// dedupeByDate a second row for the same record_date replaces the first;
// otherwise every insert adds a row.
func NewObservationRepository(db DBTX, table string, dedupeByDate bool) *ObservationRepository {
	quoted := quoteIdent(table)
	stmt := fmt.Sprintf(insertObservationSQL, quoted)
	if dedupeByDate {
		stmt += upsertObservationSuffix
	}
	return &ObservationRepository{db: db, table: quoted, insertSQL: stmt}
}

// WithDB returns a copy of the repository bound to another connection,
// typically a savepoint.
func (r *ObservationRepository) WithDB(db DBTX) *ObservationRepository {
	cp := *r
	cp.db = db
	return &cp
}

// Insert writes one classified observation.
func (r *ObservationRepository) Insert(ctx context.Context, obs types.Observation) error {
	_, err := r.db.Exec(ctx, r.insertSQL,
		obs.RecordDate,
		obs.TempMax,
		obs.TempMin,
		obs.TempAvg,
		obs.Departure,
		obs.HDD,
		obs.CDD,
		obs.PrecipitationRaw,
		obs.NewSnow,
		obs.AnomalyText(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert observation", err)
	}
	return nil
}

// List returns rows newest first. Bounds in the filter are inclusive.
func (r *ObservationRepository) List(ctx context.Context, f types.ObservationFilter) ([]types.WeatherRecord, error) {
	query, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to build observation query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list observations", err)
	}
	defer rows.Close()

	records := make([]types.WeatherRecord, 0)
	for rows.Next() {
		var (
			rec  types.WeatherRecord
			date time.Time
		)
		if err := rows.Scan(
			&date,
			&rec.TempMax,
			&rec.TempMin,
			&rec.TempAvg,
			&rec.Departure,
			&rec.HDD,
			&rec.CDD,
			&rec.Precipitation,
			&rec.NewSnow,
			&rec.Anomaly,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan observation row", err)
		}
		rec.RecordDate = types.Date{Time: date}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating observation rows", err)
	}

	return records, nil
}

func (r *ObservationRepository) listQuery(f types.ObservationFilter) sq.SelectBuilder {
	q := sq.Select(observationColumns...).
		From(r.table).
		OrderBy("record_date DESC").
		PlaceholderFormat(sq.Dollar)

	if f.From != nil {
		q = q.Where(sq.GtOrEq{"record_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.LtOrEq{"record_date": *f.To})
	}
	if f.Anomaly != "" {
		q = q.Where(sq.Eq{"anomaly": f.Anomaly})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}
