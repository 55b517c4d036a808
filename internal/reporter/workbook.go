package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"golang-branch-analytics/internal/models"
)

// DefaultSheetName is the sheet holding the exported table
const DefaultSheetName = "Sheet1"

// BuildWorkbook lays the table out on a single sheet: a header row, then
// one row per (branch, metric). Integer metrics are written as integers,
// the rest as numbers with one decimal.
func (rg *ReportGenerator) BuildWorkbook(table *models.MetricsTable) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := rg.config.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}
	if sheet != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	header := rg.headerRow(table)
	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	oneDecimal := "0.0"
	oneDecimalStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &oneDecimal})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}

	for i, row := range table.Rows {
		rowNum := i + 2
		cells := make([]interface{}, 0, len(table.Months)+2)
		cells = append(cells, row.Branch.String(), row.Metric.Label(rg.config.Locale))
		for _, month := range table.Months {
			v := row.Values[month]
			if v.IsInteger() {
				cells = append(cells, v.Decimal().IntPart())
			} else {
				cells = append(cells, v.Float64())
			}
		}

		start, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}

		if !row.Metric.IsInteger() && len(table.Months) > 0 {
			first, _ := excelize.CoordinatesToCellName(3, rowNum)
			last, _ := excelize.CoordinatesToCellName(len(table.Months)+2, rowNum)
			if err := f.SetCellStyle(sheet, first, last, oneDecimalStyle); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to style row %d: %w", rowNum, err)
			}
		}
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, boldStyle)
	}
	_ = f.SetColWidth(sheet, "A", "B", 18)
	_ = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      1,
		TopLeftCell: "C2",
		ActivePane:  "bottomRight",
	})

	return f, nil
}

// generateXLSXReport writes the workbook to writer
func (rg *ReportGenerator) generateXLSXReport(table *models.MetricsTable, writer io.Writer) error {
	f, err := rg.BuildWorkbook(table)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
