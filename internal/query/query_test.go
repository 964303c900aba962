package query

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declwidgets/declwidgets/internal/frame"
)

func people() *frame.Frame {
	return frame.New([]string{"name", "city", "age", "sales"}, [][]any{
		{"ada", "london", 36, 10.0},
		{"alan", "manchester", 41, 5.0},
		{"grace", "new york", 85, 7.5},
		{"charles", "london", 79, 2.5},
		{"edsger", "austin", 72, nil},
	})
}

func item(t *testing.T, typ string, expr any) Item {
	t.Helper()
	data, err := json.Marshal(expr)
	require.NoError(t, err)
	return Item{Type: typ, Expr: data}
}

func names(f *frame.Frame) []any {
	out := make([]any, f.Len())
	for i, row := range f.Rows {
		out[i] = row[0]
	}
	return out
}

func TestApply_EmptyQueryReturnsInput(t *testing.T) {
	f := people()
	out, err := Apply(f, nil)
	require.NoError(t, err)
	assert.Same(t, f, out)
}

func TestApply_Filter(t *testing.T) {
	f := people()
	out, err := Apply(f, []Item{item(t, TypeFilter, `age > 50 && city == "london"`)})
	require.NoError(t, err)

	assert.Equal(t, []any{"charles"}, names(out))
	assert.Equal(t, []any{3}, out.IndexLabels())

	// the input frame is untouched
	assert.Equal(t, 5, f.Len())
}

func TestApply_FilterKeepsIndexLabels(t *testing.T) {
	f := people()
	f.Index = []any{"a", "b", "c", "d", "e"}

	out, err := Apply(f, []Item{item(t, TypeFilter, `age < 50`)})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out.IndexLabels())
}

func TestApply_FilterRowObject(t *testing.T) {
	f := frame.New([]string{"first name", "n"}, [][]any{
		{"ada", 1},
		{"alan", 2},
	})

	out, err := Apply(f, []Item{item(t, TypeFilter, `row["first name"] == "alan" || index == 0`)})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())

	out, err = Apply(f, []Item{item(t, TypeFilter, `row["first name"] == "alan"`)})
	require.NoError(t, err)
	assert.Equal(t, []any{"alan"}, names(out))
}

func TestApply_FilterErrors(t *testing.T) {
	f := people()

	tests := []struct {
		name string
		expr any
	}{
		{"syntax", `age >`},
		{"not a bool", `age + 1`},
		{"unknown variable", `height > 3`},
		{"not a string", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(f, []Item{item(t, TypeFilter, tt.expr)})
			assert.Error(t, err)
		})
	}
}

func TestApply_FilterMissingValues(t *testing.T) {
	tests := []struct {
		name    string
		missing any
		expr    string
	}{
		{"nil cell", nil, `age > 30`},
		{"NaN cell", math.NaN(), `age > 30`},
		{"infinite cell", math.Inf(1), `age > 30`},
		{"nil through row", nil, `row["age"] > 30`},
		{"nil in conjunction", nil, `age > 30 && age < 100`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame.New([]string{"age"}, [][]any{{40.0}, {tt.missing}, {20.0}})

			var out *frame.Frame
			var err error
			require.NotPanics(t, func() {
				out, err = Apply(f, []Item{item(t, TypeFilter, tt.expr)})
			})
			require.NoError(t, err)
			require.Equal(t, 1, out.Len())
			assert.Equal(t, 40.0, out.Rows[0][0])
		})
	}
}

func TestApply_FilterSkipsRowsMissingSales(t *testing.T) {
	out, err := Apply(people(), []Item{item(t, TypeFilter, `sales > 3`)})
	require.NoError(t, err)
	assert.Equal(t, []any{"ada", "alan", "grace"}, names(out))
}

func TestApply_Group(t *testing.T) {
	out, err := Apply(people(), []Item{item(t, TypeGroup, map[string]any{
		"by": []string{"city"},
		"agg": []map[string]string{
			{"op": "sum", "col": "sales"},
			{"op": "count", "col": "sales"},
			{"op": "max", "col": "age"},
			{"op": "mean", "col": "age"},
		},
	})})
	require.NoError(t, err)

	assert.Equal(t, []string{"city", "sales_sum", "sales_count", "age_max", "age_mean"}, out.Columns)
	assert.Equal(t, []string{"string", "float64", "int64", "int64", "float64"}, out.DTypes)
	assert.Equal(t, [][]any{
		{"austin", 0.0, 0, 72, 72.0},
		{"london", 12.5, 2, 79, 57.5},
		{"manchester", 5.0, 1, 41, 41.0},
		{"new york", 7.5, 1, 85, 85.0},
	}, out.Rows)
}

func TestApply_GroupErrors(t *testing.T) {
	f := people()

	_, err := Apply(f, []Item{item(t, TypeGroup, map[string]any{"by": []string{}})})
	assert.Error(t, err)

	_, err = Apply(f, []Item{item(t, TypeGroup, map[string]any{
		"by":  []string{"city"},
		"agg": []map[string]string{{"op": "median", "col": "age"}},
	})})
	assert.Error(t, err)

	_, err = Apply(f, []Item{item(t, TypeGroup, map[string]any{
		"by":  []string{"city"},
		"agg": []map[string]string{{"op": "sum", "col": "name"}},
	})})
	assert.Error(t, err)

	_, err = Apply(f, []Item{item(t, TypeGroup, map[string]any{"by": []string{"country"}})})
	assert.Error(t, err)
}

func TestApply_Sort(t *testing.T) {
	out, err := Apply(people(), []Item{item(t, TypeSort, map[string]any{
		"by":        "age",
		"ascending": false,
	})})
	require.NoError(t, err)
	assert.Equal(t, []any{"grace", "charles", "edsger", "alan", "ada"}, names(out))
	assert.Equal(t, []any{2, 3, 4, 1, 0}, out.IndexLabels())
}

func TestApply_SortMultipleColumns(t *testing.T) {
	out, err := Apply(people(), []Item{item(t, TypeSort, map[string]any{
		"by":        []string{"city", "age"},
		"ascending": []bool{true, false},
	})})
	require.NoError(t, err)
	assert.Equal(t, []any{"edsger", "charles", "ada", "alan", "grace"}, names(out))
}

func TestApply_SortNilsLast(t *testing.T) {
	out, err := Apply(people(), []Item{item(t, TypeSort, map[string]any{"by": []string{"sales"}})})
	require.NoError(t, err)
	assert.Equal(t, []any{"charles", "alan", "grace", "ada", "edsger"}, names(out))
}

func TestApply_SortFlagMismatch(t *testing.T) {
	_, err := Apply(people(), []Item{item(t, TypeSort, map[string]any{
		"by":        []string{"city", "age"},
		"ascending": []bool{true, false, true},
	})})
	assert.Error(t, err)
}

func TestApply_Pipeline(t *testing.T) {
	query, err := Parse([]byte(`[
		{"type": "filter", "expr": "age > 30"},
		{"type": "group", "expr": {"by": ["city"], "agg": [{"op": "count", "col": "name"}]}},
		{"type": "sort", "expr": {"by": "name_count", "ascending": false}}
	]`))
	require.NoError(t, err)

	out, err := Apply(people(), query)
	require.NoError(t, err)
	assert.Equal(t, []any{"london", 2}, out.Rows[0][:2])
	assert.Equal(t, 4, out.Len())
}

func TestApply_UnknownType(t *testing.T) {
	_, err := Apply(people(), []Item{{Type: "pivot"}})
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestParse(t *testing.T) {
	items, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, items)

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}
