package parser

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/yurifrl/feedscan/pkg/models"
)

// Diagnostic records a field that fell back to its default value.
type Diagnostic struct {
	Window int    `json:"window"`
	Field  string `json:"field"`
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

// Result is the output of one parse pass.
type Result struct {
	Reference   time.Time       `json:"reference"`
	Records     []models.Record `json:"records"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
	Dropped     int             `json:"dropped"`
}

type Parser struct {
	logger *log.Logger
	now    func() time.Time
}

func New(logger *log.Logger) *Parser {
	return &Parser{
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used by ParseNow.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// ParseNow captures the reference instant once and parses lines against it.
func (p *Parser) ParseNow(lines []string) Result {
	return p.Parse(lines, p.now())
}

// Parse groups lines into windows and normalizes each one against ref.
func (p *Parser) Parse(lines []string, ref time.Time) Result {
	windows := Segment(lines)
	res := Result{
		Reference: ref,
		Records:   make([]models.Record, 0, len(windows)),
		Dropped:   len(lines) - len(windows)*windowSize,
	}

	for i, w := range windows {
		rec, diags := normalize(i, w, ref)
		for _, d := range diags {
			p.logger.Debug("field fell back to default", "window", d.Window, "field", d.Field, "line", d.Line, "reason", d.Reason)
		}
		res.Records = append(res.Records, rec)
		res.Diagnostics = append(res.Diagnostics, diags...)
	}

	if res.Dropped > 0 {
		p.logger.Debug("dropped trailing lines", "count", res.Dropped)
	}
	p.logger.Info("parse complete", "lines", len(lines), "records", len(res.Records), "fallbacks", len(res.Diagnostics))
	return res
}

// SplitLines turns raw OCR text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
