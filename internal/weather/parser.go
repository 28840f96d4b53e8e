package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"weatheringest/internal/types"
)

// DateLayout is the only accepted record date format (YYYY/MM/DD).
const DateLayout = "2006/01/02"

// Precipitation fallbacks used when the column is missing or not a number.
const (
	defaultPrecipitationRaw   = "0"
	defaultPrecipitationValue = 0.0
)

// ParseError describes why a row could not become an Observation.
type ParseError struct {
	Field    string
	RawValue string
	Reason   string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("field %q: %s (value %q)", e.Field, e.Reason, e.RawValue)
}

// ParseObservation validates a RawRow and converts it to a typed
// Observation. The record date and every numeric column except
// Precipitation are mandatory; the first failure is returned and the row
// must not be persisted. Precipitation never fails the row.
func ParseObservation(row RawRow) (types.Observation, error) {
	var obs types.Observation
	var err error

	if obs.RecordDate, err = parseDate(row); err != nil {
		return types.Observation{}, err
	}
	if obs.TempMax, err = parseDecimal(row, ColumnMaximum); err != nil {
		return types.Observation{}, err
	}
	if obs.TempMin, err = parseDecimal(row, ColumnMinimum); err != nil {
		return types.Observation{}, err
	}
	if obs.TempAvg, err = parseDecimal(row, ColumnAverage); err != nil {
		return types.Observation{}, err
	}
	if obs.Departure, err = parseDecimal(row, ColumnDeparture); err != nil {
		return types.Observation{}, err
	}
	if obs.HDD, err = parseInteger(row, ColumnHDD); err != nil {
		return types.Observation{}, err
	}
	if obs.CDD, err = parseInteger(row, ColumnCDD); err != nil {
		return types.Observation{}, err
	}
	if obs.NewSnow, err = parseDecimal(row, ColumnNewSnow); err != nil {
		return types.Observation{}, err
	}

	obs.PrecipitationRaw, obs.PrecipitationValue = parsePrecipitation(row)
	return obs, nil
}

func parseDate(row RawRow) (time.Time, error) {
	raw, ok := row.lookup(ColumnDate)
	if !ok {
		return time.Time{}, &ParseError{Field: ColumnDate, Reason: "column missing"}
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &ParseError{Field: ColumnDate, RawValue: raw, Reason: "not a YYYY/MM/DD date"}
	}
	return d, nil
}

func parseDecimal(row RawRow, col string) (float64, error) {
	raw, ok := row[col]
	if !ok {
		return 0, &ParseError{Field: col, Reason: "column missing"}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &ParseError{Field: col, RawValue: raw, Reason: "not a decimal number"}
	}
	return v, nil
}

func parseInteger(row RawRow, col string) (int, error) {
	raw, ok := row[col]
	if !ok {
		return 0, &ParseError{Field: col, Reason: "column missing"}
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ParseError{Field: col, RawValue: raw, Reason: "not an integer"}
	}
	return v, nil
}

// parsePrecipitation keeps the raw text verbatim when it parses, and
// substitutes the defaults otherwise (e.g. the "T" trace marker).
func parsePrecipitation(row RawRow) (string, float64) {
	raw, ok := row[ColumnPrecipitation]
	if !ok {
		return defaultPrecipitationRaw, defaultPrecipitationValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return defaultPrecipitationRaw, defaultPrecipitationValue
	}
	return raw, v
}
