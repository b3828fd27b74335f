// Package spreadsheet exports and imports record tables as Excel workbooks.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/feedscan/pkg/csv"
	"github.com/yurifrl/feedscan/pkg/models"
)

// SheetName is the sheet written by WriteXLSX.
const SheetName = "Transactions"

// maxXLSRows bounds legacy workbook reads.
const maxXLSRows = 10000

// WriteXLSX writes records to a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	header := make([]interface{}, len(models.Header))
	for i, h := range models.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "C1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 40); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		// Keep every cell a string so dates and amounts survive untouched.
		row := []interface{}{r.Note, r.Date, r.Amount}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// ReadXLSX reads records from the first sheet of an XLSX workbook.
func ReadXLSX(r io.Reader) ([]models.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return csv.FromRows(pad(rows))
}

// ReadXLS reads records from a legacy Excel 97-2003 workbook.
func ReadXLS(r io.ReadSeeker) ([]models.Record, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	if wb == nil {
		return nil, fmt.Errorf("opening workbook: no workbook stream")
	}
	rows := wb.ReadAllCells(maxXLSRows)
	return csv.FromRows(pad(rows))
}

// Load dispatches on the file extension: .csv, .xlsx or .xls.
func Load(data []byte, filename string) ([]models.Record, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return csv.Read(bytes.NewReader(data))
	case ".xlsx":
		return ReadXLSX(bytes.NewReader(data))
	case ".xls":
		return ReadXLS(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported table format %q", filepath.Ext(filename))
	}
}

// pad normalizes spreadsheet rows to the header width. Spreadsheet readers
// drop trailing empty cells, so an empty Amount shows up as a short row.
// Fully blank rows are skipped.
func pad(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if len(row) > len(models.Header) {
			row = row[:len(models.Header)]
		}
		for len(row) < len(models.Header) {
			row = append(row, "")
		}
		out = append(out, row)
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
