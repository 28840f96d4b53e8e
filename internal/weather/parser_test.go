package weather

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRow returns a row that parses cleanly; tests override single columns.
func validRow() RawRow {
	return RawRow{
		ColumnDate:          "2024/01/15",
		ColumnMaximum:       "85",
		ColumnMinimum:       "20",
		ColumnAverage:       "52",
		ColumnDeparture:     "5",
		ColumnHDD:           "13",
		ColumnCDD:           "0",
		ColumnPrecipitation: "0.0",
		ColumnNewSnow:       "0",
	}
}

func TestParseObservation_Valid(t *testing.T) {
	obs, err := ParseObservation(validRow())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), obs.RecordDate)
	assert.Equal(t, 85.0, obs.TempMax)
	assert.Equal(t, 20.0, obs.TempMin)
	assert.Equal(t, 52.0, obs.TempAvg)
	assert.Equal(t, 5.0, obs.Departure)
	assert.Equal(t, 13, obs.HDD)
	assert.Equal(t, 0, obs.CDD)
	assert.Equal(t, "0.0", obs.PrecipitationRaw)
	assert.Equal(t, 0.0, obs.PrecipitationValue)
	assert.Equal(t, 0.0, obs.NewSnow)
	assert.Empty(t, obs.Anomalies, "parser must not classify")
}

func TestParseObservation_BOMDateKey(t *testing.T) {
	plain := validRow()

	bom := validRow()
	delete(bom, ColumnDate)
	bom["\ufeffDate"] = "2024/01/15"

	a, err := ParseObservation(plain)
	require.NoError(t, err)
	b, err := ParseObservation(bom)
	require.NoError(t, err)

	assert.Equal(t, a.RecordDate, b.RecordDate)
}

func TestParseObservation_MandatoryFieldFailures(t *testing.T) {
	tests := []struct {
		column string
		value  string
	}{
		{ColumnDate, "notadate"},
		{ColumnDate, "2024-01-15"},
		{ColumnDate, "01/15/2024"},
		{ColumnDate, "2024/02/30"},
		{ColumnMaximum, "hot"},
		{ColumnMinimum, ""},
		{ColumnAverage, "M"},
		{ColumnDeparture, "--"},
		{ColumnHDD, "13.5"},
		{ColumnCDD, "x"},
		{ColumnNewSnow, "T"},
	}

	for _, tt := range tests {
		t.Run(tt.column+"="+tt.value, func(t *testing.T) {
			row := validRow()
			row[tt.column] = tt.value

			_, err := ParseObservation(row)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
			assert.Equal(t, tt.column, pe.Field)
			assert.Equal(t, tt.value, pe.RawValue)
		})
	}
}

func TestParseObservation_MissingMandatoryColumn(t *testing.T) {
	for _, col := range []string{ColumnDate, ColumnMaximum, ColumnHDD, ColumnNewSnow} {
		t.Run(col, func(t *testing.T) {
			row := validRow()
			delete(row, col)

			_, err := ParseObservation(row)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, col, pe.Field)
			assert.Equal(t, "column missing", pe.Reason)
		})
	}
}

func TestParseObservation_LenientPrecipitation(t *testing.T) {
	tests := []struct {
		name      string
		value     *string
		wantRaw   string
		wantValue float64
	}{
		{"trace marker", strPtr("T"), "0", 0.0},
		{"empty", strPtr(""), "0", 0.0},
		{"garbage", strPtr("n/a"), "0", 0.0},
		{"missing column", nil, "0", 0.0},
		{"numeric kept verbatim", strPtr("1.50"), "1.50", 1.5},
		{"padded numeric kept verbatim", strPtr(" 0.25"), " 0.25", 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			if tt.value == nil {
				delete(row, ColumnPrecipitation)
			} else {
				row[ColumnPrecipitation] = *tt.value
			}

			obs, err := ParseObservation(row)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRaw, obs.PrecipitationRaw)
			assert.Equal(t, tt.wantValue, obs.PrecipitationValue)
		})
	}
}

func TestParseObservation_TrimsNumericWhitespace(t *testing.T) {
	row := validRow()
	row[ColumnMaximum] = " 85 "
	row[ColumnHDD] = " 13"

	obs, err := ParseObservation(row)
	require.NoError(t, err)
	assert.Equal(t, 85.0, obs.TempMax)
	assert.Equal(t, 13, obs.HDD)
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Field: ColumnHDD, RawValue: "x", Reason: "not an integer"}
	assert.Equal(t, `field "HDD": not an integer (value "x")`, err.Error())
}

func strPtr(s string) *string { return &s }
