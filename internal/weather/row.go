package weather

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Source column names. Matching is case-sensitive.
const (
	ColumnDate          = "Date"
	ColumnMaximum       = "Maximum"
	ColumnMinimum       = "Minimum"
	ColumnAverage       = "Average"
	ColumnDeparture     = "Departure"
	ColumnHDD           = "HDD"
	ColumnCDD           = "CDD"
	ColumnNewSnow       = "New Snow"
	ColumnPrecipitation = "Precipitation"
)

// byteOrderMark may prefix the first header field when the file was saved
// by a spreadsheet tool.
const byteOrderMark = "\ufeff"

// RequiredColumns lists every column the parser reads.
var RequiredColumns = []string{
	ColumnDate,
	ColumnMaximum,
	ColumnMinimum,
	ColumnAverage,
	ColumnDeparture,
	ColumnHDD,
	ColumnCDD,
	ColumnNewSnow,
	ColumnPrecipitation,
}

// RawRow maps a header column name to the raw text of one data line.
// Columns absent from the line (short rows) are absent from the map.
type RawRow map[string]string

// lookup returns the value for col, also trying the BOM-prefixed spelling.
func (r RawRow) lookup(col string) (string, bool) {
	if v, ok := r[col]; ok {
		return v, true
	}
	v, ok := r[byteOrderMark+col]
	return v, ok
}

// Header is the parsed first line of a source object.
type Header []string

// ParseHeader splits the header line into column names.
func ParseHeader(line string) (Header, error) {
	fields, err := splitFields(line)
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New("parsing header: header line is empty")
	}
	return Header(fields), nil
}

// Missing returns the required columns the header does not carry.
func (h Header) Missing() []string {
	present := make(map[string]struct{}, len(h))
	for _, name := range h {
		present[strings.TrimPrefix(name, byteOrderMark)] = struct{}{}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Row splits one data line against the header. Extra trailing fields are
// ignored; missing trailing fields are left out of the RawRow so the parser
// reports them.
func (h Header) Row(line string) (RawRow, error) {
	fields, err := splitFields(line)
	if err != nil {
		return nil, err
	}
	row := make(RawRow, len(h))
	for i, name := range h {
		if i >= len(fields) {
			break
		}
		row[name] = fields[i]
	}
	return row, nil
}

// IsBlank reports whether a line carries no data and should be ignored
// rather than counted as a skipped row.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// SplitLines splits decoded object text into lines, accepting \n, \r\n and
// \r terminators. A trailing terminator does not produce an empty last line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// splitFields parses a single comma-delimited line, honouring quoted fields.
func splitFields(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("malformed delimited line: %w", err)
	}
	return fields, nil
}
