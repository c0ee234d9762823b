// Package xlsx imports and exports channel lists as Excel workbooks.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
)

// RequiredColumns must all appear in the header row of an imported sheet.
var RequiredColumns = []string{"name", "measurement", "field", "asset_id", "attribute", "db_name", "time_interval"}

// Optional columns.
const (
	columnSalIndex  = "salIndex"
	columnThreshold = "threshold_pct"
	columnPeriod    = "period"
)

// ErrMissingColumns is returned when the header lacks a required column.
var ErrMissingColumns = errors.New("xlsx: missing required columns")

// RowError describes a data row that could not be imported.
type RowError struct {
	Row  int
	Name string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Name, e.Err)
}

// ImportResult summarizes a merge of imported rows into an existing list.
type ImportResult struct {
	Channels []masterdata.MonitorChannel
	Added    []string
	Skipped  []string
	Invalid  []RowError
}

// Import reads the first sheet of the workbook in r and appends its rows to
// existing. Rows whose name already exists are skipped; rows with a
// non-integer salIndex are reported and left out.
func Import(r io.Reader, existing []masterdata.MonitorChannel) (ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportResult{}, errors.New("xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportResult{}, fmt.Errorf("xlsx: read rows: %w", err)
	}
	if len(rows) == 0 {
		return ImportResult{}, fmt.Errorf("%w: empty sheet", ErrMissingColumns)
	}

	header := make(map[string]int, len(rows[0]))
	for i, cell := range rows[0] {
		header[strings.TrimSpace(cell)] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ImportResult{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	result := ImportResult{Channels: append([]masterdata.MonitorChannel(nil), existing...)}
	names := make(map[string]struct{}, len(existing))
	for _, ch := range existing {
		names[ch.Name] = struct{}{}
	}

	for i, row := range rows[1:] {
		cell := func(col string) string {
			idx, ok := header[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		name := cell("name")
		if name == "" {
			continue
		}
		if _, dup := names[name]; dup {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		ch, err := channelFromRow(cell)
		if err != nil {
			result.Invalid = append(result.Invalid, RowError{Row: i + 2, Name: name, Err: err})
			continue
		}
		names[name] = struct{}{}
		result.Channels = append(result.Channels, ch)
		result.Added = append(result.Added, name)
	}
	return result, nil
}

func channelFromRow(cell func(string) string) (masterdata.MonitorChannel, error) {
	ch := masterdata.MonitorChannel{
		Name:        cell("name"),
		Measurement: cell("measurement"),
		AssetID:     cell("asset_id"),
		Attribute:   cell("attribute"),
		Database:    cell("db_name"),
		Interval:    cell("time_interval"),
	}
	field := cell("field")
	if strings.Contains(field, "+") {
		spec := &masterdata.CounterSpec{}
		for _, part := range strings.Split(field, "+") {
			if part = strings.TrimSpace(part); part != "" {
				spec.Fields = append(spec.Fields, part)
			}
		}
		if raw := cell(columnThreshold); raw != "" {
			pct, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return ch, fmt.Errorf("threshold_pct must be a number: %q", raw)
			}
			spec.ThresholdPct = pct
		}
		ch.Counter = spec
	} else {
		ch.Field = field
	}
	if raw := cell(columnSalIndex); raw != "" {
		idx, err := parseInt(raw)
		if err != nil {
			return ch, fmt.Errorf("salIndex must be an integer: %q", raw)
		}
		ch.SalIndex = &idx
	}
	if raw := cell(columnPeriod); raw != "" {
		period, err := time.ParseDuration(raw)
		if err != nil {
			return ch, fmt.Errorf("period: %w", err)
		}
		ch.Period = period
	}
	return ch, nil
}

// parseInt accepts "305" and the "305.0" spreadsheets produce for numeric cells.
func parseInt(raw string) (int, error) {
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return int(f), nil
}
