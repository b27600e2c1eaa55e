package sheet

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheets map[string][][]any, order ...string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				if v == nil {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, axis, v))
			}
		}
	}

	path := filepath.Join(t.TempDir(), "containers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestOpenWorkbook_TypedCells(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		"Instances": {
			{"Object Record ID", "TempContainerRecord", "Instance Type"},
			{100, "T1", "mixed materials"},
		},
		"Containers": {
			{"TempContainerRecord", "Container Type", "Container Indicator", "Location Start Date", "Weight"},
			{"T1", "box", 1, time.Date(2019, 6, 25, 0, 0, 0, 0, time.UTC), 2.5},
		},
	}, "Instances", "Containers")

	tables, err := OpenWorkbook(path)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Instances", tables[0].Name)
	assert.Equal(t, "Containers", tables[1].Name)

	containers := tables[1].Rows
	require.Len(t, containers, 2)
	assert.Equal(t, "T1", containers[1][0])
	assert.Equal(t, 1, containers[1][2])
	assert.Equal(t, 2.5, containers[1][4])

	date, ok := containers[1][3].(time.Time)
	require.True(t, ok, "expected time.Time, got %T", containers[1][3])
	assert.Equal(t, "2019-06-25", date.Format(time.DateOnly))
}

func TestOpenWorkbook_NormalizesThroughLayout(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		"Sheet A": {
			{"Object Record ID", "TempContainerRecord", "Instance Type"},
			{100, "T1", "mixed materials"},
			{nil, nil, nil},
			{101, "T2", "text"},
		},
	}, "Sheet A")

	tables, err := OpenWorkbook(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	layout := DefaultLayout()
	assert.Equal(t, SheetInstances, layout.Classify(tables[0]))

	rows, err := Normalize(tables[0], layout.Rules())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	id, ok := rows[1].Get("Object Record ID").Int()
	assert.True(t, ok)
	assert.Equal(t, 101, id)
}

func TestOpenWorkbook_MissingFile(t *testing.T) {
	_, err := OpenWorkbook(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open workbook")
}

func TestCustomDateFormat(t *testing.T) {
	assert.True(t, customDateFormat("yyyy-mm-dd"))
	assert.True(t, customDateFormat(`d "of" mmmm`))
	assert.False(t, customDateFormat(`0.00"days"`))
	assert.False(t, customDateFormat("#,##0"))
}
