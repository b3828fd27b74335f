package plan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Plan is a YAML manifest describing batches of screenshots to convert.
type Plan struct {
	// Reference pins the instant relative dates resolve against. Empty
	// means the time the plan is run.
	Reference string  `yaml:"reference,omitempty"`
	Batches   []Batch `yaml:"batches"`

	dir string
}

type Batch struct {
	Name   string   `yaml:"name"`
	Images []string `yaml:"images"`
	Output string   `yaml:"output"`
	Format string   `yaml:"format,omitempty"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	p.dir = filepath.Dir(path)

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) validate() error {
	if len(p.Batches) == 0 {
		return fmt.Errorf("plan has no batches")
	}
	if _, err := p.ReferenceTime(); err != nil {
		return err
	}
	for i, b := range p.Batches {
		if len(b.Images) == 0 {
			return fmt.Errorf("batch %d (%s) has no images", i+1, b.Name)
		}
		if b.Output == "" {
			return fmt.Errorf("batch %d (%s) has no output", i+1, b.Name)
		}
		switch strings.ToLower(b.Format) {
		case "", "csv", "xlsx":
		default:
			return fmt.Errorf("batch %d (%s) has unknown format %q", i+1, b.Name, b.Format)
		}
	}
	return nil
}

// ReferenceTime parses Reference as RFC 3339. It returns the zero time when
// no reference is pinned.
func (p *Plan) ReferenceTime() (time.Time, error) {
	if p.Reference == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, p.Reference)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference %q: %w", p.Reference, err)
	}
	return t, nil
}

// Resolve makes a manifest-relative path relative to the working directory.
func (p *Plan) Resolve(path string) string {
	if filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// ImagePaths expands glob patterns in the batch image list, keeping order.
func (p *Plan) ImagePaths(b Batch) ([]string, error) {
	var paths []string
	for _, pattern := range b.Images {
		resolved := p.Resolve(pattern)
		matches, err := filepath.Glob(resolved)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files found matching pattern %s", pattern)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (p *Plan) Print(w io.Writer) {
	ref := p.Reference
	if ref == "" {
		ref = "now"
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plan: %d batch(es), reference %s", len(p.Batches), ref)))
	for i, b := range p.Batches {
		format := b.Format
		if format == "" {
			format = "auto"
		}
		fmt.Fprintf(w, "[%d] %s -> %s %s\n", i+1, nameStyle.Render(b.Name), b.Output, dimStyle.Render("("+format+")"))
		for _, img := range b.Images {
			fmt.Fprintf(w, "      %s\n", dimStyle.Render(img))
		}
	}
}
