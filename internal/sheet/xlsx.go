package sheet

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// OpenWorkbook reads every worksheet of an xlsx file into raw tables.
//
// Numeric cells styled with a date number format come back as time.Time,
// integral numbers as int, other numbers as float64, booleans as bool and
// empty cells as nil.
func OpenWorkbook(path string) ([]Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open workbook")
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	var tables []Table
	for _, name := range f.GetSheetList() {
		t, err := readSheet(f, name, date1904)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func readSheet(f *excelize.File, name string, date1904 bool) (Table, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, errors.Wrapf(err, "failed to read sheet %q", name)
	}
	t := Table{Name: name, Rows: make([][]Cell, len(rows))}
	for r, cols := range rows {
		cells := make([]Cell, len(cols))
		for c, raw := range cols {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return Table{}, err
			}
			cell, err := typedCell(f, name, axis, raw, date1904)
			if err != nil {
				return Table{}, errors.Wrapf(err, "sheet %q cell %s", name, axis)
			}
			cells[c] = cell
		}
		t.Rows[r] = cells
	}
	return t, nil
}

func typedCell(f *excelize.File, sheetName, axis, raw string, date1904 bool) (Cell, error) {
	if raw == "" {
		return nil, nil
	}
	typ, err := f.GetCellType(sheetName, axis)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		num, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw, nil
		}
		isDate, err := dateStyled(f, sheetName, axis)
		if err != nil {
			return nil, err
		}
		if isDate {
			return excelize.ExcelDateToTime(num, date1904)
		}
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
		return num, nil
	default:
		return raw, nil
	}
}

// dateStyled reports whether the cell's number format renders a date.
func dateStyled(f *excelize.File, sheetName, axis string) (bool, error) {
	styleID, err := f.GetCellStyle(sheetName, axis)
	if err != nil || styleID == 0 {
		return false, err
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	if style.CustomNumFmt != nil {
		return customDateFormat(*style.CustomNumFmt), nil
	}
	return builtinDateFormat(style.NumFmt), nil
}

func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// customDateFormat looks for day or year tokens outside quoted literals.
func customDateFormat(format string) bool {
	inQuote := false
	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == 'd' || r == 'y':
			return true
		}
	}
	return false
}
