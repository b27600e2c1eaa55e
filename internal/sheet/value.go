package sheet

import (
	"encoding/json"
	"strconv"
)

// Value is a normalized cell value: a string, an integer, or empty.
//
// The zero Value is empty. Empty is the only representation of absence;
// a Row never reports a missing key differently from an empty one.
type Value struct {
	kind valueKind
	s    string
	n    int
}

type valueKind uint8

const (
	kindEmpty valueKind = iota
	kindString
	kindInt
)

// Empty is the absent value.
var Empty = Value{}

// StringValue returns a string Value. The empty string yields Empty.
func StringValue(s string) Value {
	if s == "" {
		return Empty
	}
	return Value{kind: kindString, s: s}
}

// IntValue returns an integer Value. Zero yields Empty, matching the
// spreadsheet convention that a falsy integer cell is blank.
func IntValue(n int) Value {
	if n == 0 {
		return Empty
	}
	return Value{kind: kindInt, n: n}
}

// Present reports whether the value carries data.
func (v Value) Present() bool {
	return v.kind != kindEmpty
}

// IsInt reports whether the value was coerced to an integer.
func (v Value) IsInt() bool {
	return v.kind == kindInt
}

// String returns the textual form of the value; "" when empty.
func (v Value) String() string {
	switch v.kind {
	case kindString:
		return v.s
	case kindInt:
		return strconv.Itoa(v.n)
	default:
		return ""
	}
}

// Int returns the integer form of the value. String values that hold a
// decimal integer are converted; anything else reports false.
func (v Value) Int() (int, bool) {
	switch v.kind {
	case kindInt:
		return v.n, true
	case kindString:
		n, err := strconv.Atoi(v.s)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes integers as JSON numbers and everything else as a
// string, so event log fields keep the type the spreadsheet produced.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == kindInt {
		return []byte(strconv.Itoa(v.n)), nil
	}
	return json.Marshal(v.String())
}

// Row is one normalized spreadsheet row.
type Row struct {
	// Sheet and Number locate the row in the source workbook (1-based,
	// header is row 1).
	Sheet  string
	Number int

	headers []string
	fields  map[string]Value
}

// NewRow builds a row from header/value pairs in header order. It is mainly
// useful for tests and for callers that do not read from a workbook.
func NewRow(sheetName string, number int, pairs ...any) Row {
	r := Row{Sheet: sheetName, Number: number, fields: make(map[string]Value, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		header, _ := pairs[i].(string)
		var v Value
		switch x := pairs[i+1].(type) {
		case Value:
			v = x
		case string:
			v = StringValue(x)
		case int:
			v = IntValue(x)
		}
		r.set(header, v)
	}
	return r
}

func (r *Row) set(header string, v Value) {
	if r.fields == nil {
		r.fields = make(map[string]Value)
	}
	if _, ok := r.fields[header]; !ok {
		r.headers = append(r.headers, header)
	}
	r.fields[header] = v
}

// Get returns the value under header, or Empty.
func (r Row) Get(header string) Value {
	return r.fields[header]
}

// Headers returns the row's headers in sheet order.
func (r Row) Headers() []string {
	out := make([]string, len(r.headers))
	copy(out, r.headers)
	return out
}

// Blank reports whether every field is empty.
func (r Row) Blank() bool {
	for _, v := range r.fields {
		if v.Present() {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as an object keyed by header.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return json.Marshal(m)
}
