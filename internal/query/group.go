package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/declwidgets/declwidgets/internal/frame"
)

// Aggregation is one {op, col} pair of a group expression
type Aggregation struct {
	Op  string `json:"op"`
	Col string `json:"col"`
}

// GroupExpr is the expression of a group item
type GroupExpr struct {
	By  []string      `json:"by"`
	Agg []Aggregation `json:"agg"`
}

type aggregator func(values []any) (any, error)

var aggregators = map[string]aggregator{
	"sum":   aggSum,
	"count": aggCount,
	"mean":  aggMean,
	"min":   aggMin,
	"max":   aggMax,
}

func applyGroup(f *frame.Frame, raw json.RawMessage) (*frame.Frame, error) {
	var expr GroupExpr
	if err := json.Unmarshal(raw, &expr); err != nil {
		return nil, fmt.Errorf("malformed group expression: %w", err)
	}
	if len(expr.By) == 0 {
		return nil, fmt.Errorf("group expression needs at least one column in by")
	}

	byIdx, err := columnIndexes(f, expr.By)
	if err != nil {
		return nil, err
	}

	aggIdx := make([]int, len(expr.Agg))
	for i, a := range expr.Agg {
		if _, ok := aggregators[a.Op]; !ok {
			return nil, fmt.Errorf("unknown aggregation %q", a.Op)
		}
		if aggIdx[i], err = f.ColumnIndex(a.Col); err != nil {
			return nil, err
		}
	}

	type group struct {
		key  []any
		rows [][]any
	}
	groups := map[string]*group{}
	var order []*group

	for _, row := range f.Rows {
		key := make([]any, len(byIdx))
		for i, c := range byIdx {
			key[i] = cell(row, c)
		}
		k := groupKey(key)
		g, ok := groups[k]
		if !ok {
			g = &group{key: key}
			groups[k] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, row)
	}

	sort.SliceStable(order, func(i, j int) bool {
		for c := range order[i].key {
			if cmp := compare(order[i].key[c], order[j].key[c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	out := &frame.Frame{}
	for i, name := range expr.By {
		out.Columns = append(out.Columns, name)
		out.DTypes = append(out.DTypes, f.ColumnType(byIdx[i]))
	}
	for i, a := range expr.Agg {
		out.Columns = append(out.Columns, a.Col+"_"+a.Op)
		out.DTypes = append(out.DTypes, aggDType(a.Op, f.ColumnType(aggIdx[i])))
	}

	for _, g := range order {
		row := append([]any{}, g.key...)
		for i, a := range expr.Agg {
			values := make([]any, len(g.rows))
			for r, src := range g.rows {
				values[r] = cell(src, aggIdx[i])
			}
			v, err := aggregators[a.Op](values)
			if err != nil {
				return nil, fmt.Errorf("%s of %s: %w", a.Op, a.Col, err)
			}
			row = append(row, v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func aggDType(op, source string) string {
	switch op {
	case "count":
		return "int64"
	case "sum", "mean":
		return "float64"
	default:
		return source
	}
}

func columnIndexes(f *frame.Frame, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, err := f.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}
	return idx, nil
}

func cell(row []any, c int) any {
	if c < len(row) {
		return row[c]
	}
	return nil
}

func groupKey(key []any) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = fmt.Sprintf("%T:%v", k, k)
	}
	return strings.Join(parts, "\x00")
}

func aggCount(values []any) (any, error) {
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n, nil
}

func aggSum(values []any) (any, error) {
	total := 0.0
	for _, v := range values {
		if v == nil {
			continue
		}
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("non-numeric value %v", v)
		}
		total += f
	}
	return total, nil
}

func aggMean(values []any) (any, error) {
	sum, err := aggSum(values)
	if err != nil {
		return nil, err
	}
	n, _ := aggCount(values)
	if n.(int) == 0 {
		return nil, nil
	}
	return sum.(float64) / float64(n.(int)), nil
}

func aggMin(values []any) (any, error) {
	return extreme(values, -1), nil
}

func aggMax(values []any) (any, error) {
	return extreme(values, 1), nil
}

func extreme(values []any, sign int) any {
	var best any
	for _, v := range values {
		if v == nil {
			continue
		}
		if best == nil || compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best
}
