// Package frame provides the small tabular value types that kernel code hands
// to channels and functions. Serializers flatten them to JSON and queries
// filter, group and sort them.
package frame

import (
	"fmt"
	"reflect"
	"time"
)

// Frame is a column-labelled table with an optional row index
type Frame struct {
	// Columns holds the column labels in display order
	Columns []string
	// Index holds one label per row; nil means a positional 0..n-1 index
	Index []any
	// Rows holds the cell values, one slice per row, aligned with Columns
	Rows [][]any
	// DTypes optionally names the storage type of each column (e.g. "int64")
	DTypes []string
}

// New creates a frame from columns and rows with a positional index
func New(columns []string, rows [][]any) *Frame {
	return &Frame{Columns: columns, Rows: rows}
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Rows)
}

// RowIndex returns the index label of row i
func (f *Frame) RowIndex(i int) any {
	if f.Index != nil && i < len(f.Index) {
		return f.Index[i]
	}
	return i
}

// IndexLabels returns the index labels for every row
func (f *Frame) IndexLabels() []any {
	labels := make([]any, f.Len())
	for i := range labels {
		labels[i] = f.RowIndex(i)
	}
	return labels
}

// ColumnIndex returns the position of the named column
func (f *Frame) ColumnIndex(name string) (int, error) {
	for i, c := range f.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown column: %s", name)
}

// Column returns the values of the named column as a series sharing the frame index
func (f *Frame) Column(name string) (*Series, error) {
	idx, err := f.ColumnIndex(name)
	if err != nil {
		return nil, err
	}

	values := make([]any, f.Len())
	for i, row := range f.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}

	return &Series{Name: name, Index: f.IndexLabels(), Values: values}, nil
}

// Head returns a frame holding at most the first n rows
func (f *Frame) Head(n int) *Frame {
	if n < 0 || n >= f.Len() {
		return f
	}

	head := &Frame{
		Columns: f.Columns,
		Rows:    f.Rows[:n],
		DTypes:  f.DTypes,
	}
	if f.Index != nil {
		head.Index = f.Index[:min(n, len(f.Index))]
	}
	return head
}

// Clone returns a deep copy of the frame structure; cell values are shared
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		DTypes:  append([]string(nil), f.DTypes...),
		Rows:    make([][]any, len(f.Rows)),
	}
	if f.Index != nil {
		out.Index = append([]any(nil), f.Index...)
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// ColumnType returns the declared dtype of column i, or one inferred from the
// first non-nil value in that column
func (f *Frame) ColumnType(i int) string {
	if i < len(f.DTypes) && f.DTypes[i] != "" {
		return f.DTypes[i]
	}

	for _, row := range f.Rows {
		if i < len(row) && row[i] != nil {
			return DTypeOf(row[i])
		}
	}
	return "object"
}

// DTypeOf names the storage type of a single value
func DTypeOf(v any) string {
	if _, ok := v.(time.Time); ok {
		return "datetime64"
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int64"
	case reflect.Float32, reflect.Float64:
		return "float64"
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	default:
		return "object"
	}
}

// Series is a single labelled column of values
type Series struct {
	Name   string
	Index  []any
	Values []any
}

// Len returns the number of values
func (s *Series) Len() int {
	return len(s.Values)
}

// Label returns the index label of value i
func (s *Series) Label(i int) any {
	if s.Index != nil && i < len(s.Index) {
		return s.Index[i]
	}
	return i
}
