package plan

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writePlan(t, dir, `
reference: 2024-03-14T10:00:00Z
batches:
  - name: march
    images: [shots/a.png, shots/b.png]
    output: out/march.csv
  - name: april
    images: [april.png]
    output: april.xlsx
    format: xlsx
`)

	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Batches, 2)
	assert.Equal(t, "march", p.Batches[0].Name)
	assert.Equal(t, []string{"shots/a.png", "shots/b.png"}, p.Batches[0].Images)
	assert.Equal(t, "xlsx", p.Batches[1].Format)

	ref, err := p.ReferenceTime()
	require.NoError(t, err)
	assert.True(t, ref.Equal(time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)))

	assert.Equal(t, filepath.Join(dir, "out/march.csv"), p.Resolve("out/march.csv"))
	assert.Equal(t, "/abs/file.png", p.Resolve("/abs/file.png"))
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"no batches":    "batches: []\n",
		"no images":     "batches:\n  - name: x\n    output: x.csv\n",
		"no output":     "batches:\n  - name: x\n    images: [a.png]\n",
		"bad format":    "batches:\n  - name: x\n    images: [a.png]\n    output: x.json\n    format: json\n",
		"bad reference": "reference: yesterday\nbatches:\n  - name: x\n    images: [a.png]\n    output: x.csv\n",
		"bad yaml":      "batches: [\n",
	}
	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writePlan(t, t.TempDir(), contents))
			assert.Error(t, err)
		})
	}
}

func TestImagePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shots"), 0o755))
	for _, name := range []string{"2.png", "1.png", "cover.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shots", name), nil, 0o644))
	}
	p, err := Load(writePlan(t, dir, "batches:\n  - name: x\n    images: [shots/cover.png, 'shots/[0-9].png']\n    output: x.csv\n"))
	require.NoError(t, err)

	paths, err := p.ImagePaths(p.Batches[0])
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "shots", "cover.png"),
		filepath.Join(dir, "shots", "1.png"),
		filepath.Join(dir, "shots", "2.png"),
	}, paths)

	_, err = p.ImagePaths(Batch{Images: []string{"missing/*.png"}})
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	p := &Plan{Batches: []Batch{{Name: "march", Images: []string{"a.png"}, Output: "march.csv"}}}
	var buf bytes.Buffer
	p.Print(&buf)
	assert.Contains(t, buf.String(), "march")
	assert.Contains(t, buf.String(), "march.csv")
	assert.Contains(t, buf.String(), "reference now")
}
