package types

import (
	"strings"
	"time"
)

// AnomalyLabel tags an observation with the reason it is unusual.
type AnomalyLabel string

// Anomaly labels in their fixed evaluation order. The text is part of the
// persisted contract and is matched exactly by downstream filters.
const (
	AnomalyHighTemperature AnomalyLabel = "High Temperature"
	AnomalyLowTemperature  AnomalyLabel = "Low Temperature"
	AnomalyLargeDeparture  AnomalyLabel = "Large Departure"
	AnomalyHeavyRain       AnomalyLabel = "Heavy Rain"
	AnomalyHeavySnow       AnomalyLabel = "Heavy Snow"
)

// NormalLabel is the anomaly text stored when no rule matched.
const NormalLabel = "Normal"

// anomalySeparator joins multiple labels into the stored anomaly text.
const anomalySeparator = ", "

// Observation is one validated daily weather record. It is produced by the
// record parser, labelled once by the classifier and never mutated after.
type Observation struct {
	RecordDate time.Time

	TempMax   float64
	TempMin   float64
	TempAvg   float64
	Departure float64
	NewSnow   float64

	HDD int
	CDD int

	// PrecipitationRaw is stored verbatim; PrecipitationValue is only used
	// for classification. Both fall back to "0"/0.0 when the column is
	// missing or not a number.
	PrecipitationRaw   string
	PrecipitationValue float64

	Anomalies []AnomalyLabel
}

// IsNormal reports whether no anomaly rule matched.
func (o Observation) IsNormal() bool {
	return len(o.Anomalies) == 0
}

// AnomalyText renders the labels as stored in the anomaly column.
func (o Observation) AnomalyText() string {
	return JoinAnomalies(o.Anomalies)
}

// JoinAnomalies renders labels in the given order, or NormalLabel when empty.
func JoinAnomalies(labels []AnomalyLabel) string {
	if len(labels) == 0 {
		return NormalLabel
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, anomalySeparator)
}

// WeatherRecord is one persisted row of the weather table as read back by
// the query API.
type WeatherRecord struct {
	RecordDate    Date    `json:"record_date"`
	TempMax       float64 `json:"temp_max"`
	TempMin       float64 `json:"temp_min"`
	TempAvg       float64 `json:"temp_avg"`
	Departure     float64 `json:"departure"`
	HDD           int     `json:"hdd"`
	CDD           int     `json:"cdd"`
	Precipitation string  `json:"precipitation"`
	NewSnow       float64 `json:"new_snow"`
	Anomaly       string  `json:"anomaly"`
}

// ObservationFilter narrows a read of the weather table. Zero values mean
// "no bound". Anomaly is compared for exact equality with the stored text.
type ObservationFilter struct {
	From    *time.Time
	To      *time.Time
	Anomaly string
	Limit   int
}

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// MarshalJSON renders the date without a time component.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(DateLayout) + `"`), nil
}

// ObjectRef identifies a source object in the object store.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// SkippedRow records why one data row was not persisted. Line is the
// 1-based line number in the source object (the header is line 1).
type SkippedRow struct {
	Line   int    `json:"line"`
	Row    string `json:"row"`
	Reason string `json:"reason"`
}

// IngestReport is the result of one ingestion invocation.
type IngestReport struct {
	RunID            string       `json:"run_id"`
	Bucket           string       `json:"bucket"`
	Key              string       `json:"key"`
	RowsInserted     int          `json:"rows_inserted"`
	RowsSkipped      int          `json:"rows_skipped"`
	Skipped          []SkippedRow `json:"skipped,omitempty"`
	SkippedTruncated bool         `json:"skipped_truncated,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// Duration is the wall time between start and finish.
func (r IngestReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
