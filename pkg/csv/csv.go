package csv

import (
	"bytes"
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/yurifrl/feedscan/pkg/models"
)

type FilterFunc func(models.Record) bool

// Create renders records as CSV, skipping those rejected by filter.
func Create(records []models.Record, filter FilterFunc) []byte {
	var kept []models.Record
	for _, r := range records {
		if filter == nil || filter(r) {
			kept = append(kept, r)
		}
	}
	var buf bytes.Buffer
	// bytes.Buffer writes cannot fail
	_ = Write(&buf, kept)
	return buf.Bytes()
}

// Write emits the Note,Date,Amount header followed by one row per record.
func Write(w io.Writer, records []models.Record) error {
	cw := stdcsv.NewWriter(w)
	if err := cw.Write(models.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses a table previously produced by Write, possibly edited by hand.
func Read(r io.Reader) ([]models.Record, error) {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = len(models.Header)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return FromRows(rows)
}

// FromRows validates the header row and converts the remaining rows.
func FromRows(rows [][]string) ([]models.Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	if err := CheckHeader(rows[0]); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := models.FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// CheckHeader rejects any header other than Note,Date,Amount.
func CheckHeader(row []string) error {
	if len(row) != len(models.Header) {
		return fmt.Errorf("unexpected header %q", strings.Join(row, ","))
	}
	for i, name := range models.Header {
		if strings.TrimSpace(strings.TrimPrefix(row[i], "\ufeff")) != name {
			return fmt.Errorf("unexpected header %q, want %q", strings.Join(row, ","), strings.Join(models.Header, ","))
		}
	}
	return nil
}
