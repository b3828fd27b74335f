package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/feedscan/pkg/csv"
	"github.com/yurifrl/feedscan/pkg/models"
)

type filters struct {
	startDate string
	endDate   string
	minAmount float64
	maxAmount float64
	payee     string
}

func (f *filters) validate() error {
	for _, d := range []string{f.startDate, f.endDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return fmt.Errorf("invalid date filter %q (want MM/DD/YYYY)", d)
		}
	}
	return nil
}

// toFilterFunc keeps records matching every set filter. Records whose date
// or amount cannot be parsed only pass filters that do not inspect them.
func (f *filters) toFilterFunc() csv.FilterFunc {
	start, _ := time.Parse(models.DateLayout, f.startDate)
	end, _ := time.Parse(models.DateLayout, f.endDate)
	minAmount := decimal.NewFromFloat(f.minAmount)
	maxAmount := decimal.NewFromFloat(f.maxAmount)

	return func(r models.Record) bool {
		if f.startDate != "" || f.endDate != "" {
			date, err := r.Time()
			if err != nil {
				return false
			}
			if f.startDate != "" && date.Before(start) {
				return false
			}
			if f.endDate != "" && date.After(end) {
				return false
			}
		}
		if f.minAmount != 0 || f.maxAmount != 0 {
			amount, err := r.Decimal()
			if err != nil {
				return false
			}
			if f.minAmount != 0 && amount.LessThan(minAmount) {
				return false
			}
			if f.maxAmount != 0 && amount.GreaterThan(maxAmount) {
				return false
			}
		}
		if f.payee != "" && !strings.Contains(strings.ToLower(r.Note), strings.ToLower(f.payee)) {
			return false
		}
		return true
	}
}

func applyFilter(records []models.Record, keep csv.FilterFunc) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// collectInputs expands globs and directories into an ordered file list.
// Directory entries are taken in name order, which keeps screenshots
// named by capture time in feed order.
func collectInputs(patterns []string, logger *log.Logger) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files found matching pattern %s", pattern)
		}

		for _, match := range matches {
			fileInfo, err := os.Stat(match)
			if err != nil {
				logger.Warn("failed to stat file", "error", err, "file", match)
				continue
			}
			if !fileInfo.IsDir() {
				paths = append(paths, match)
				continue
			}

			entries, err := os.ReadDir(match)
			if err != nil {
				return nil, fmt.Errorf("failed to read directory: %w", err)
			}
			var names []string
			for _, entry := range entries {
				if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
					continue
				}
				names = append(names, entry.Name())
			}
			sort.Strings(names)
			for _, name := range names {
				paths = append(paths, filepath.Join(match, name))
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	return paths, nil
}
