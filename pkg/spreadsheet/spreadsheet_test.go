package spreadsheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yurifrl/feedscan/pkg/models"
)

func TestWriteXLSX(t *testing.T) {
	records := []models.Record{
		{Note: "Coffee Shop", Date: "03/13/2024", Amount: "4.50"},
		{Note: "Parking", Date: "03/14/2024", Amount: ""},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, records))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Note", "Date", "Amount"}, rows[0])
	assert.Equal(t, []string{"Coffee Shop", "03/13/2024", "4.50"}, rows[1])

	got, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadXLSXBadHeader(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date", "Payee", "Memo", "Amount"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ReadXLSX(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")
}

func TestLoad(t *testing.T) {
	records, err := Load([]byte("Note,Date,Amount\nTea,03/12/2024,2.00\n"), "edited.CSV")
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{Note: "Tea", Date: "03/12/2024", Amount: "2.00"}}, records)

	_, err = Load([]byte("{}"), "records.json")
	assert.Error(t, err)
}

func TestPad(t *testing.T) {
	rows := pad([][]string{
		{"Note", "Date", "Amount"},
		{"Parking", "03/14/2024"},
		{"", " ", ""},
		{"Tea", "03/12/2024", "2.00", "stray"},
	})
	assert.Equal(t, [][]string{
		{"Note", "Date", "Amount"},
		{"Parking", "03/14/2024", ""},
		{"Tea", "03/12/2024", "2.00"},
	}, rows)
}

func TestLoadXLSRejectsNonWorkbook(t *testing.T) {
	for _, data := range [][]byte{[]byte("Note,Date,Amount\nTea,03/12/2024,2.00\n"), nil} {
		_, err := Load(data, "table.xls")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening workbook")
	}
}
