package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/yurifrl/feedscan/pkg/models"
)

var amountRegex = regexp.MustCompile(`\$([0-9,.]+)`)

// Normalize derives a record from a single window. It never fails: each
// field that cannot be extracted falls back to its default.
func Normalize(w models.Window, ref time.Time) models.Record {
	rec, _ := normalize(0, w, ref)
	return rec
}

func normalize(index int, w models.Window, ref time.Time) (models.Record, []Diagnostic) {
	var diags []Diagnostic

	amount, ok := extractAmount(w.Summary)
	if !ok {
		diags = append(diags, Diagnostic{Window: index, Field: "amount", Line: w.Summary, Reason: "no $ amount found"})
	}

	date, reason := resolveDate(w.When, ref)
	if reason != "" {
		diags = append(diags, Diagnostic{Window: index, Field: "date", Line: w.When, Reason: reason})
	}

	return models.Record{
		Note:   extractMerchant(w.Summary),
		Date:   date.Format(models.DateLayout),
		Amount: amount,
	}, diags
}

// extractMerchant drops everything from the first "$" on.
func extractMerchant(line string) string {
	if idx := strings.IndexByte(line, '$'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

func extractAmount(line string) (string, bool) {
	m := amountRegex.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}
