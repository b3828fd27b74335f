package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/feedscan/pkg/models"
	"github.com/yurifrl/feedscan/pkg/spreadsheet"
)

type fakeEngine map[string][]string

func (f fakeEngine) Extract(_ context.Context, path string) ([]string, error) {
	lines, ok := f[path]
	if !ok {
		return nil, errors.New("tesseract exited with status 1")
	}
	return lines, nil
}

func newTestProcessor(engine fakeEngine) *Processor {
	return NewProcessor(engine, log.New(io.Discard))
}

func TestProcess(t *testing.T) {
	engine := fakeEngine{
		"one.png": {"Coffee Shop $4.50", "(unused)", "Yesterday", "Tea $2.00"},
		"two.png": {"note", "Monday"},
	}
	ref := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	batch, err := newTestProcessor(engine).Process(context.Background(), []string{"one.png", "broken.png", "two.png"}, ref)
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, ref, batch.Reference)
	assert.Equal(t, []models.Record{
		{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"},
		{Note: "Tea", Date: "03/11/2024", Amount: "2.00"},
	}, batch.Records)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "broken.png", batch.Failures[0].Path)
	assert.Equal(t, 0, batch.Dropped)
}

func TestProcessNoLines(t *testing.T) {
	_, err := newTestProcessor(fakeEngine{}).Process(context.Background(), []string{"a.png"}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable lines")
}

func TestProcessDefaultsReferenceToNow(t *testing.T) {
	engine := fakeEngine{"a.png": {"A $1", "-", "Pending"}}
	before := time.Now()
	batch, err := newTestProcessor(engine).Process(context.Background(), []string{"a.png"}, time.Time{})
	require.NoError(t, err)
	assert.False(t, batch.Reference.Before(before))
}

func TestWithRecords(t *testing.T) {
	b := NewBatch([]models.Record{{Note: "A", Date: "03/13/2024", Amount: "1"}})
	edited := b.WithRecords([]models.Record{{Note: "B", Date: "03/14/2024", Amount: "2"}})

	assert.Equal(t, b.ID, edited.ID)
	assert.Equal(t, "A", b.Records[0].Note)
	assert.Equal(t, "B", edited.Records[0].Note)
}

func TestWrite(t *testing.T) {
	p := newTestProcessor(fakeEngine{})
	records := []models.Record{{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"}}
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out", "feed.csv")
	require.NoError(t, p.Write(records, csvPath, ""))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "Note,Date,Amount\nCoffee Shop,03/13/2024,4.50\n", string(data))

	xlsxPath := filepath.Join(dir, "feed.xlsx")
	require.NoError(t, p.Write(records, xlsxPath, ""))
	f, err := os.Open(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
	got, err := spreadsheet.ReadXLSX(f)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteReportsFailedFlush(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	p := newTestProcessor(fakeEngine{})
	records := []models.Record{{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"}}

	err := p.Write(records, "/dev/full", "csv")
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, "csv", FormatFor("out.csv", ""))
	assert.Equal(t, "xlsx", FormatFor("OUT.XLSX", ""))
	assert.Equal(t, "xlsx", FormatFor("out.csv", "XLSX"))
	assert.Equal(t, "csv", FormatFor("out", ""))
}
