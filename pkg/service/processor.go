package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/feedscan/pkg/csv"
	"github.com/yurifrl/feedscan/pkg/models"
	"github.com/yurifrl/feedscan/pkg/ocr"
	"github.com/yurifrl/feedscan/pkg/parser"
	"github.com/yurifrl/feedscan/pkg/spreadsheet"
)

// Batch is the outcome of processing one set of screenshots.
type Batch struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	Reference   time.Time           `json:"reference"`
	Records     []models.Record     `json:"records"`
	Diagnostics []parser.Diagnostic `json:"diagnostics,omitempty"`
	Failures    []ocr.Failure       `json:"failures,omitempty"`
	Dropped     int                 `json:"dropped"`
}

// WithRecords returns a copy of b carrying a new record set.
func (b *Batch) WithRecords(records []models.Record) *Batch {
	next := *b
	next.Records = records
	next.Diagnostics = nil
	return &next
}

// NewBatch wraps records that did not come from OCR, e.g. an imported table.
func NewBatch(records []models.Record) *Batch {
	now := time.Now()
	return &Batch{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Reference: now,
		Records:   records,
	}
}

type Processor struct {
	engine ocr.Engine
	parser *parser.Parser
	logger *log.Logger
}

func NewProcessor(engine ocr.Engine, logger *log.Logger) *Processor {
	return &Processor{
		engine: engine,
		parser: parser.New(logger),
		logger: logger,
	}
}

// Process extracts lines from every path, in order, and parses them in a
// single pass against ref. A zero ref means "now", captured once.
func (p *Processor) Process(ctx context.Context, paths []string, ref time.Time) (*Batch, error) {
	lines, failures := ocr.ExtractAll(ctx, p.engine, paths, p.logger)
	if len(lines) == 0 {
		return nil, fmt.Errorf("no usable lines produced from %d file(s)", len(paths))
	}

	var res parser.Result
	if ref.IsZero() {
		res = p.parser.ParseNow(lines)
	} else {
		res = p.parser.Parse(lines, ref)
	}

	batch := &Batch{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		Reference:   res.Reference,
		Records:     res.Records,
		Diagnostics: res.Diagnostics,
		Failures:    failures,
		Dropped:     res.Dropped,
	}
	p.logger.Info("processed batch", "id", batch.ID, "files", len(paths), "records", len(batch.Records), "failures", len(failures))
	return batch, nil
}

// FormatFor picks the output format from an explicit value or the file
// extension, defaulting to csv.
func FormatFor(path, format string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return "xlsx"
	}
	return "csv"
}

// Encode writes records in the given format.
func Encode(w io.Writer, records []models.Record, format string) error {
	switch format {
	case "csv":
		return csv.Write(w, records)
	case "xlsx":
		return spreadsheet.WriteXLSX(w, records)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Write saves records to path, creating parent directories as needed.
func (p *Processor) Write(records []models.Record, path, format string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}

	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}

	if err := Encode(output, records, FormatFor(path, format)); err != nil {
		output.Close()
		return fmt.Errorf("error writing output file: %w", err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("error closing output file: %w", err)
	}

	p.logger.Info("wrote output", "path", path, "records", len(records))
	return nil
}
