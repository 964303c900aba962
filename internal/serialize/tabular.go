package serialize

import (
	"fmt"
	"regexp"
	"time"

	"github.com/declwidgets/declwidgets/internal/frame"
)

var precisionSuffix = regexp.MustCompile(`32|64(.*)`)

// NormalizeType maps a storage dtype name to the client-side type name
func NormalizeType(dtype string) string {
	switch precisionSuffix.ReplaceAllString(dtype, "") {
	case "int", "bigint", "uint", "float", "double":
		return "Number"
	case "bool", "boolean":
		return "Boolean"
	case "string":
		return "String"
	case "datetime", "date":
		return "Date"
	default:
		return "Unknown"
	}
}

// FrameAdapter serializes *frame.Frame in split orientation:
// {columns, index, data, columnTypes}
type FrameAdapter struct{}

func (FrameAdapter) Name() string { return "frame" }
func (FrameAdapter) Available() bool { return true }

func (FrameAdapter) CanHandle(v any) bool {
	_, ok := v.(*frame.Frame)
	return ok
}

func (FrameAdapter) Serialize(v any, opts Options) (any, error) {
	f := v.(*frame.Frame)
	head := f.Head(opts.Limit)

	dtypes := opts.ColumnTypes
	if len(dtypes) == 0 {
		dtypes = make([]string, len(f.Columns))
		for i := range f.Columns {
			dtypes[i] = f.ColumnType(i)
		}
	}

	columnTypes := make([]string, len(dtypes))
	for i, dt := range dtypes {
		columnTypes[i] = NormalizeType(dt)
	}

	data := make([][]any, head.Len())
	for r, row := range head.Rows {
		out := make([]any, len(row))
		for c, cell := range row {
			out[c] = cell
			if t, ok := cell.(time.Time); ok {
				out[c] = formatTime(t, opts.DateFormat)
			}
		}
		data[r] = out
	}

	return map[string]any{
		"columns":     append([]string{}, f.Columns...),
		"index":       head.IndexLabels(),
		"data":        data,
		"columnTypes": columnTypes,
	}, nil
}

// SeriesAdapter serializes *frame.Series in index orientation: {label: value}
type SeriesAdapter struct{}

func (SeriesAdapter) Name() string { return "series" }
func (SeriesAdapter) Available() bool { return true }

func (SeriesAdapter) CanHandle(v any) bool {
	_, ok := v.(*frame.Series)
	return ok
}

func (SeriesAdapter) Serialize(v any, opts Options) (any, error) {
	s := v.(*frame.Series)

	out := make(map[string]any, s.Len())
	for i, val := range s.Values {
		if t, ok := val.(time.Time); ok {
			val = formatTime(t, opts.DateFormat)
		}
		out[labelKey(s.Label(i))] = val
	}
	return out, nil
}

func labelKey(label any) string {
	switch l := label.(type) {
	case string:
		return l
	case time.Time:
		return formatTime(l, "iso").(string)
	default:
		return fmt.Sprint(l)
	}
}

// formatTime renders t in the requested format. Times in UTC are treated as
// zone-less and rendered without the ISO "T" and "Z" markers.
func formatTime(t time.Time, format string) any {
	if format == "epoch" {
		return t.UnixMilli()
	}
	if t.Location() == time.UTC {
		return t.Format("2006-01-02 15:04:05.000")
	}
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}
