package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Format names an export format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Render exports snap in the requested format.
func Render(snap Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatPDF:
		return BuildPDF(snap)
	case FormatXLSX:
		return BuildXLSX(snap)
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

// BuildPDF renders a minimal PDF for a snapshot.
func BuildPDF(snap Snapshot) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Actual Values in CMMS")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", snap.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Channels: %d", len(snap.Rows)))
	pdf.Ln(8)

	widths := []float64{70, 80, 50, 30, 25, 22}
	headers := []string{"Channel", "Measurement", "Field", "Asset / Attribute", "Current", "Checkpoint"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range snap.Rows {
		current := FormatValue(row.Current)
		if row.Error != "" {
			current = "error"
		}
		cells := []string{
			row.Channel,
			row.Measurement,
			row.Field,
			row.AssetID + " / " + row.Attribute,
			current,
			checkpointText(row.Checkpoint),
		}
		for i, c := range cells {
			align := "L"
			if i >= 4 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, truncate(pdf, c, widths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders the snapshot as a single-sheet workbook.
func BuildXLSX(snap Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "values"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Generated")
	_ = f.SetCellValue(sheet, "B1", snap.GeneratedAt.Format(time.RFC3339))
	headers := []string{"Channel", "Measurement", "Field", "Asset", "Attribute", "Current", "Checkpoint", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range snap.Rows {
		values := []any{row.Channel, row.Measurement, row.Field, row.AssetID, row.Attribute, row.Current, nil, row.Error}
		if row.Checkpoint != nil {
			values[6] = *row.Checkpoint
		}
		for c, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+4)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkpointText(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	for len(s) > 1 && pdf.GetStringWidth(s) > width-2 {
		s = s[:len(s)-1]
	}
	return s
}
