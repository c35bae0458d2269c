package testing

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"slices"
)

// RowSet is the scripted result of a TestConn query.
//
//	rows := NewRowSet("id", "name").
//	    AddRow(1, "Alice").
//	    AddRow(2, "Bob")
//	conn.ExpectQuery("SELECT").WillReturnRows(rows)
type RowSet struct {
	columns []string
	rows    [][]any
}

// NewRowSet creates an empty RowSet with the given columns.
func NewRowSet(columns ...string) *RowSet {
	return &RowSet{columns: columns}
}

// AddRow appends one row. It panics when the value count does not match the
// column count.
func (rs *RowSet) AddRow(values ...any) *RowSet {
	if len(values) != len(rs.columns) {
		panic(fmt.Sprintf("RowSet.AddRow: %d values for columns %v", len(values), rs.columns))
	}
	rs.rows = append(rs.rows, values)
	return rs
}

// AddRows appends count rows produced by gen(0) .. gen(count-1).
func (rs *RowSet) AddRows(count int, gen func(i int) []any) *RowSet {
	for i := range count {
		rs.AddRow(gen(i)...)
	}
	return rs
}

// AddRowsFromStructs appends one row per struct, reading the fields whose
// `db` tag names a column. A missing column panics.
func (rs *RowSet) AddRowsFromStructs(structs ...any) *RowSet {
	for _, s := range structs {
		rs.AddRow(structRow(s, rs.columns)...)
	}
	return rs
}

// RowCount returns the number of rows.
func (rs *RowSet) RowCount() int {
	return len(rs.rows)
}

// Columns returns a copy of the column names.
func (rs *RowSet) Columns() []string {
	return slices.Clone(rs.columns)
}

func cloneRowValues(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = slices.Clone(row)
	}
	return out
}

// normalizeDriverValue converts a scripted value the way database/sql would
// convert a query argument. Pointers are dereferenced, nil pointers become
// NULL, and unsupported types fall back to their String method.
func normalizeDriverValue(v any) (driver.Value, error) {
	if b, ok := v.([]byte); ok {
		return slices.Clone(b), nil
	}
	out, err := driver.DefaultParameterConverter.ConvertValue(v)
	if err == nil {
		return out, nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("unsupported RowSet value type %T: %w", v, err)
}

func structRow(s any, columns []string) []any {
	v := reflect.Indirect(reflect.ValueOf(s))
	if v.Kind() != reflect.Struct {
		panic(fmt.Sprintf("RowSet.AddRowsFromStructs: %T is not a struct", s))
	}

	t := v.Type()
	byTag := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		if tag := t.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			byTag[tag] = v.Field(i).Interface()
		}
	}

	row := make([]any, len(columns))
	for i, col := range columns {
		val, ok := byTag[col]
		if !ok {
			panic(fmt.Sprintf("RowSet.AddRowsFromStructs: no field tagged db:%q in %T", col, s))
		}
		row[i] = val
	}
	return row
}
