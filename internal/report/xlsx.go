package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary by expense"
	PivotSheet   = "Details (Pivot)"
)

// WriteXLSX writes a workbook with the summary and pivot sheets.
func WriteXLSX(w io.Writer, summary Summary, pivot Pivot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeGrid(f, SummarySheet, summary.Grid()); err != nil {
		return err
	}
	if err := setWidths(f, SummarySheet, []float64{10, 30, 20}); err != nil {
		return err
	}
	if err := f.MergeCell(SummarySheet, "A1", "C1"); err != nil {
		return fmt.Errorf("merge summary title: %w", err)
	}

	if _, err := f.NewSheet(PivotSheet); err != nil {
		return fmt.Errorf("add pivot sheet: %w", err)
	}
	if err := writeGrid(f, PivotSheet, pivot.Grid()); err != nil {
		return err
	}
	widths := []float64{30}
	for range pivot.Dates {
		widths = append(widths, 15)
	}
	widths = append(widths, 20)
	if err := setWidths(f, PivotSheet, widths); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(pivot.Width(), 1)
	if err != nil {
		return err
	}
	if err := f.MergeCell(PivotSheet, "A1", last); err != nil {
		return fmt.Errorf("merge pivot title: %w", err)
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeGrid fills cells row by row. Nil cells are left empty.
func writeGrid(f *excelize.File, sheet string, grid [][]any) error {
	for i, row := range grid {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set width %s!%s: %w", sheet, col, err)
		}
	}
	return nil
}
