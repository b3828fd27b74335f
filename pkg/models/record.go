package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the MM/DD/YYYY layout every record date is written in.
const DateLayout = "01/02/2006"

// Header is the column contract shared with spreadsheet imports and the
// edit/resave flow. Order and names must not change.
var Header = []string{"Note", "Date", "Amount"}

// Window is one candidate transaction: three consecutive OCR lines.
type Window struct {
	Summary string // merchant and amount
	Detail  string // unused by extraction
	When    string // time reference
}

// Record represents a transaction recovered from an activity feed screenshot
type Record struct {
	Note   string `json:"note"`
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// Row returns the record in Header order.
func (r Record) Row() []string {
	return []string{r.Note, r.Date, r.Amount}
}

// FromRow builds a record from a Header-ordered row.
func FromRow(row []string) (Record, error) {
	if len(row) != len(Header) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(row))
	}
	return Record{
		Note:   strings.TrimSpace(row[0]),
		Date:   strings.TrimSpace(row[1]),
		Amount: strings.TrimSpace(row[2]),
	}, nil
}

// Time parses the record date.
func (r Record) Time() (time.Time, error) {
	t, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", r.Date, err)
	}
	return t, nil
}

// Decimal parses the amount, ignoring thousands separators. An empty amount
// is an error.
func (r Record) Decimal() (decimal.Decimal, error) {
	if r.Amount == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(r.Amount, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", r.Amount, err)
	}
	return d, nil
}

// Total sums the parseable amounts and reports how many were skipped.
func Total(records []Record) (decimal.Decimal, int) {
	total := decimal.Zero
	skipped := 0
	for _, r := range records {
		d, err := r.Decimal()
		if err != nil {
			skipped++
			continue
		}
		total = total.Add(d)
	}
	return total, skipped
}
