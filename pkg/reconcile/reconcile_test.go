package reconcile

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/feedscan/pkg/models"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestMilliunits(t *testing.T) {
	m, err := Milliunits(models.Record{Amount: "4.50"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(-4500), m)

	m, err = Milliunits(models.Record{Amount: "1,234.567"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1234567), m)

	_, err = Milliunits(models.Record{Amount: ""}, false)
	assert.Error(t, err)
}

func TestImportID(t *testing.T) {
	a := ImportID(day(2024, 3, 13), "Coffee Shop", -4500, 0)
	assert.Equal(t, a, ImportID(day(2024, 3, 13), " coffee shop ", -4500, 0))
	assert.NotEqual(t, a, ImportID(day(2024, 3, 13), "Coffee Shop", -4500, 1))
	assert.LessOrEqual(t, len(a), 36)
	assert.Contains(t, a, "FEEDSCAN:")
}

func TestBuild(t *testing.T) {
	local := []models.Record{
		{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"},
		{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"},
		{Note: "Parking", Date: "03/14/2024", Amount: ""},
		{Note: "Tea", Date: "03/12/2024", Amount: "2.00"},
		{Note: "Book", Date: "not a date", Amount: "9.00"},
	}
	remote := []Remote{
		{ID: "r1", Date: day(2024, 3, 13), Payee: "coffee shop", Milliunits: -4500},
		{ID: "r2", Date: day(2024, 3, 12), Payee: "Tea", Milliunits: 2000},
	}

	report := Build(local, remote, false)
	require.Len(t, report.Items, 5)

	assert.Equal(t, Synced, report.Items[0].Status)
	assert.Equal(t, "r1", report.Items[0].Remote.ID)
	assert.Equal(t, ToAdd, report.Items[1].Status, "a remote transaction matches only once")
	assert.Equal(t, Invalid, report.Items[2].Status)
	assert.Error(t, report.Items[2].Err)
	assert.Equal(t, ToAdd, report.Items[3].Status, "sign differs from the outflow")
	assert.Equal(t, Invalid, report.Items[4].Status)

	assert.Equal(t, 1, report.InSyncCount())
	assert.Equal(t, 2, report.MissingCount())
	assert.Equal(t, 2, report.InvalidCount())
	require.Len(t, report.ToSync(), 2)
	assert.NotEqual(t, report.ToSync()[0].ImportID, report.Items[0].ImportID)
}

func TestBuildMatchesImportID(t *testing.T) {
	local := []models.Record{{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"}}
	id := ImportID(day(2024, 3, 13), "Coffee Shop", -4500, 0)
	remote := []Remote{{ID: "r1", Date: day(2024, 3, 14), Payee: "Renamed in budget", Milliunits: -4500, ImportID: id}}

	report := Build(local, remote, false)
	assert.Equal(t, Synced, report.Items[0].Status)
	assert.Equal(t, int64(-4500), report.Items[0].Milliunits)
}

func TestPrint(t *testing.T) {
	report := Build([]models.Record{
		{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"},
		{Note: "Parking", Date: "03/14/2024", Amount: ""},
	}, nil, false)

	var buf bytes.Buffer
	report.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "+ 03/13/2024 | Coffee Shop")
	assert.Contains(t, out, "! 03/14/2024 | Parking")
	assert.Contains(t, out, "1 transaction(s) will be added, 0 already in sync, 1 skipped")
}
