package query

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/declwidgets/declwidgets/internal/frame"
)

func applyFilter(f *frame.Frame, raw json.RawMessage) (*frame.Frame, error) {
	var src string
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("filter expression must be a string: %w", err)
	}

	expr, diags := hclsyntax.ParseExpression([]byte(src), "filter", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid filter expression: %s", diags.Error())
	}

	out := &frame.Frame{Columns: f.Columns, DTypes: f.DTypes, Rows: [][]any{}, Index: []any{}}

	for i, row := range f.Rows {
		ctx, err := rowContext(f, i, row)
		if err != nil {
			return nil, err
		}

		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			// Missing cells never match, as in a dataframe query
			if referencesNull(expr, ctx) {
				continue
			}
			return nil, fmt.Errorf("row %d: %s", i, diags.Error())
		}
		if val.IsNull() || !val.IsKnown() {
			continue
		}
		if val.Type() != cty.Bool {
			return nil, fmt.Errorf("row %d: filter must evaluate to a bool, got %s", i, val.Type().FriendlyName())
		}

		if val.True() {
			out.Rows = append(out.Rows, row)
			out.Index = append(out.Index, f.RowIndex(i))
		}
	}
	return out, nil
}

// referencesNull reports whether any variable expr reads is null in ctx
func referencesNull(expr hcl.Expression, ctx *hcl.EvalContext) bool {
	for _, traversal := range expr.Variables() {
		v, diags := traversal.TraverseAbs(ctx)
		if !diags.HasErrors() && v.IsNull() {
			return true
		}
	}
	return false
}

func rowContext(f *frame.Frame, i int, row []any) (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value, len(f.Columns)+2)
	attrs := make(map[string]cty.Value, len(f.Columns))

	for c, name := range f.Columns {
		var cell any
		if c < len(row) {
			cell = row[c]
		}
		v, err := toCty(cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		attrs[name] = v
		if hclsyntax.ValidIdentifier(name) {
			vars[name] = v
		}
	}

	index, err := toCty(f.RowIndex(i))
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	vars["index"] = index
	vars["row"] = cty.ObjectVal(attrs)

	return &hcl.EvalContext{Variables: vars}, nil
}

// toCty converts a cell value to a cty.Value
func toCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	switch val := v.(type) {
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case time.Time:
		return cty.StringVal(val.Format(time.RFC3339)), nil
	case float64:
		return floatVal(val), nil
	case float32:
		return floatVal(float64(val)), nil
	case *big.Float:
		return cty.NumberVal(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cty.NumberUIntVal(rv.Uint()), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported cell type %T", v)
}

// floatVal maps NaN and infinities, the missing-value markers of numeric
// columns, to a null number
func floatVal(f float64) cty.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return cty.NullVal(cty.Number)
	}
	return cty.NumberFloatVal(f)
}
