package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/roach88/containersync/internal/aspace/aspacetest"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// remoteArgs points a command at srv with a pre-issued session.
func remoteArgs(srv *aspacetest.Server) []string {
	return []string{"--base-url", srv.URL, "--session", aspacetest.Session}
}

// writeWorkbook saves sheets, in order, to a temporary xlsx file.
func writeWorkbook(t *testing.T, names []string, sheets map[string][][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range names {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, axis, v))
			}
		}
	}

	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func importWorkbook(t *testing.T) string {
	t.Helper()
	return writeWorkbook(t, []string{"Containers", "Instances"}, map[string][][]any{
		"Containers": {
			{"TempContainerRecord", "Container Type", "Container Indicator"},
			{"T1", "box", "1"},
		},
		"Instances": {
			{"Object Record ID", "TempContainerRecord", "Instance Type"},
			{100, "T1", "mixed materials"},
		},
	})
}
