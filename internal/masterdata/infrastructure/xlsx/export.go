package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
)

const sheetName = "channels"

// Export writes channels as a workbook Import can read back.
func Export(w io.Writer, channels []masterdata.MonitorChannel) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header := append(append([]string(nil), RequiredColumns...), columnSalIndex, columnThreshold, columnPeriod)
	for i, col := range header {
		if err := f.SetCellValue(sheetName, cellName(i, 1), col); err != nil {
			return err
		}
	}
	for r, ch := range channels {
		row := r + 2
		field := ch.Field
		var threshold any
		if ch.Counter != nil {
			field = strings.Join(ch.Counter.Fields, "+")
			if ch.Counter.ThresholdPct > 0 {
				threshold = ch.Counter.ThresholdPct
			}
		}
		values := []any{ch.Name, ch.Measurement, field, ch.AssetID, ch.Attribute, ch.Database, ch.Interval, nil, threshold, nil}
		if ch.SalIndex != nil {
			values[7] = *ch.SalIndex
		}
		if ch.Period > 0 {
			values[9] = ch.Period.String()
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			if err := f.SetCellValue(sheetName, cellName(i, row), v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}
