// Package ocr turns screenshots into trimmed text lines. The recognition
// itself is delegated to an external engine.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/feedscan/pkg/config"
	"github.com/yurifrl/feedscan/pkg/parser"
)

// NoLines is the failure reason for an image that produced nothing usable.
const NoLines = "no usable lines produced for that image"

// Engine extracts trimmed, non-empty lines from a single file.
type Engine interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// Failure describes an input that contributed no lines to a batch.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Tesseract runs the tesseract command line tool.
type Tesseract struct {
	Binary   string
	PSM      int
	Language string
	Timeout  time.Duration
}

// NewTesseract builds a Tesseract engine from the OCR config section.
func NewTesseract(cfg config.OCRConfig) *Tesseract {
	return &Tesseract{
		Binary:   cfg.Binary,
		PSM:      cfg.PSM,
		Language: cfg.Language,
		Timeout:  cfg.Timeout,
	}
}

func (t *Tesseract) args(path string) []string {
	args := []string{path, "stdout", "--psm", strconv.Itoa(t.PSM)}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	return args
}

func (t *Tesseract) Extract(ctx context.Context, path string) ([]string, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, t.args(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w: %s", t.Binary, err, strings.TrimSpace(stderr.String()))
	}
	return parser.SplitLines(stdout.String()), nil
}

// Text reads files that already hold OCR output, one line per line.
type Text struct{}

func (Text) Extract(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parser.SplitLines(string(data)), nil
}

// Auto sends .txt files to Text and everything else to Images.
type Auto struct {
	Images Engine
}

func (a Auto) Extract(ctx context.Context, path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return Text{}.Extract(ctx, path)
	}
	return a.Images.Extract(ctx, path)
}

// ExtractAll runs engine over paths in order and concatenates their lines.
// An input that errors or yields no lines is reported as a Failure and
// skipped; the rest of the batch continues.
func ExtractAll(ctx context.Context, engine Engine, paths []string, logger *log.Logger) ([]string, []Failure) {
	var lines []string
	var failures []Failure

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{Path: path, Reason: err.Error()})
			continue
		}

		extracted, err := engine.Extract(ctx, path)
		if err != nil {
			logger.Warn("ocr failed", "file", path, "error", err)
			failures = append(failures, Failure{Path: path, Reason: fmt.Sprintf("%s: %v", NoLines, err)})
			continue
		}
		if len(extracted) == 0 {
			logger.Warn("ocr produced no lines", "file", path)
			failures = append(failures, Failure{Path: path, Reason: NoLines})
			continue
		}

		logger.Debug("ocr extracted lines", "file", path, "lines", len(extracted))
		lines = append(lines, extracted...)
	}

	return lines, failures
}
