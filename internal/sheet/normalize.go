package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"
)

// Cell is a raw spreadsheet cell as produced by a workbook adapter.
// Supported dynamic types: nil, string, int, int64, float64, bool, time.Time.
type Cell = any

// Table is one sheet of raw cells. Rows[0] is the header row.
type Table struct {
	Name string
	Rows [][]Cell
}

// Rules controls per-header coercion.
type Rules struct {
	integer map[string]struct{}
}

// NewRules returns rules enforcing integer coercion on the given headers.
func NewRules(integerHeaders ...string) Rules {
	r := Rules{integer: make(map[string]struct{}, len(integerHeaders))}
	for _, h := range integerHeaders {
		r.integer[h] = struct{}{}
	}
	return r
}

// EnforcesInteger reports whether header is coerced to an integer.
func (r Rules) EnforcesInteger(header string) bool {
	_, ok := r.integer[header]
	return ok
}

// CoercionError reports an integer-enforced cell that could not be parsed.
type CoercionError struct {
	Sheet  string
	Row    int
	Header string
	Value  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("sheet %q row %d: %s: cannot parse %q as an integer", e.Sheet, e.Row, e.Header, e.Value)
}

// Headers derives the header list from a sheet's first row. Trailing blank
// cells are dropped; interior blank cells keep their position as "".
func Headers(first []Cell) []string {
	headers := make([]string, len(first))
	for i, c := range first {
		if s, ok := c.(string); ok {
			headers[i] = strings.TrimSpace(norm.NFC.String(s))
		} else if c != nil {
			headers[i] = strings.TrimSpace(fmt.Sprint(c))
		}
	}
	end := len(headers)
	for end > 0 && headers[end-1] == "" {
		end--
	}
	return headers[:end]
}

// NormalizeRow coerces one raw row against headers. The boolean result is
// false when every field is empty; such rows must not be processed.
func NormalizeRow(raw []Cell, headers []string, rules Rules) (Row, bool, error) {
	row := Row{fields: make(map[string]Value, len(headers))}
	for idx, header := range headers {
		if header == "" {
			continue
		}
		var c Cell
		if idx < len(raw) {
			c = raw[idx]
		}
		v, err := coerce(c, header, rules)
		if err != nil {
			return Row{}, false, err
		}
		row.set(header, v)
	}
	if row.Blank() {
		return Row{}, false, nil
	}
	return row, true, nil
}

// Normalize converts a whole table into rows, eliding blank rows.
func Normalize(t Table, rules Rules) ([]Row, error) {
	if len(t.Rows) == 0 {
		return nil, nil
	}
	headers := Headers(t.Rows[0])
	var out []Row
	for i, raw := range t.Rows[1:] {
		number := i + 2
		row, ok, err := NormalizeRow(raw, headers, rules)
		if err != nil {
			if ce, isCoercion := err.(*CoercionError); isCoercion {
				ce.Sheet = t.Name
				ce.Row = number
			}
			return nil, err
		}
		if !ok {
			continue
		}
		row.Sheet = t.Name
		row.Number = number
		out = append(out, row)
	}
	return out, nil
}

// coerce applies, in order: date cells, integer-enforced headers, nil,
// and the trimmed string representation.
func coerce(c Cell, header string, rules Rules) (Value, error) {
	if t, ok := c.(time.Time); ok {
		return StringValue(t.Format(time.DateOnly)), nil
	}
	if rules.EnforcesInteger(header) {
		if falsy(c) {
			return Empty, nil
		}
		n, err := toInt(c)
		if err != nil {
			return Empty, &CoercionError{Header: header, Value: fmt.Sprint(c)}
		}
		return IntValue(n), nil
	}
	if c == nil {
		return Empty, nil
	}
	return StringValue(strings.TrimSpace(norm.NFC.String(stringify(c)))), nil
}

func falsy(c Cell) bool {
	switch v := c.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	case bool:
		return !v
	}
	return false
}

func toInt(c Cell) (int, error) {
	switch v := c.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(math.Trunc(v)), nil
	case bool:
		return 1, nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, errors.Newf("not an integer: %q", v)
		}
		return int(f), nil
	}
	return 0, errors.Newf("unsupported cell type %T", c)
}

func stringify(c Cell) string {
	switch v := c.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(c)
}
