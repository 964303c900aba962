package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/declwidgets/declwidgets/internal/frame"
)

// SortExpr is the expression of a sort item. By and Ascending accept either
// a single value or a list.
type SortExpr struct {
	By        []string
	Ascending []bool
}

// UnmarshalJSON accepts {"by": "a" | ["a", ...], "ascending": true | [true, ...]}
func (s *SortExpr) UnmarshalJSON(data []byte) error {
	var raw struct {
		By        json.RawMessage `json:"by"`
		Ascending json.RawMessage `json:"ascending"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var one string
	if err := json.Unmarshal(raw.By, &one); err == nil {
		s.By = []string{one}
	} else if err := json.Unmarshal(raw.By, &s.By); err != nil {
		return fmt.Errorf("by must be a column name or a list of names: %w", err)
	}

	if len(raw.Ascending) == 0 {
		return nil
	}
	var asc bool
	if err := json.Unmarshal(raw.Ascending, &asc); err == nil {
		s.Ascending = []bool{asc}
	} else if err := json.Unmarshal(raw.Ascending, &s.Ascending); err != nil {
		return fmt.Errorf("ascending must be a bool or a list of bools: %w", err)
	}
	return nil
}

// ascending reports the direction of sort column i. A single flag applies
// to every column; missing flags default to ascending.
func (s SortExpr) ascending(i int) bool {
	switch {
	case len(s.Ascending) == 1:
		return s.Ascending[0]
	case i < len(s.Ascending):
		return s.Ascending[i]
	default:
		return true
	}
}

func applySort(f *frame.Frame, raw json.RawMessage) (*frame.Frame, error) {
	var expr SortExpr
	if err := json.Unmarshal(raw, &expr); err != nil {
		return nil, fmt.Errorf("malformed sort expression: %w", err)
	}
	if len(expr.Ascending) > 1 && len(expr.Ascending) != len(expr.By) {
		return nil, fmt.Errorf("ascending has %d flags for %d columns", len(expr.Ascending), len(expr.By))
	}

	byIdx, err := columnIndexes(f, expr.By)
	if err != nil {
		return nil, err
	}

	perm := make([]int, f.Len())
	for i := range perm {
		perm[i] = i
	}

	sort.SliceStable(perm, func(a, b int) bool {
		ra, rb := f.Rows[perm[a]], f.Rows[perm[b]]
		for i, c := range byIdx {
			cmp := compare(cell(ra, c), cell(rb, c))
			if cmp == 0 {
				continue
			}
			if !expr.ascending(i) {
				cmp = -cmp
			}
			return cmp < 0
		}
		return false
	})

	out := &frame.Frame{
		Columns: f.Columns,
		DTypes:  f.DTypes,
		Rows:    make([][]any, len(perm)),
		Index:   make([]any, len(perm)),
	}
	for i, p := range perm {
		out.Rows[i] = f.Rows[p]
		out.Index[i] = f.RowIndex(p)
	}
	return out, nil
}

// compare orders two cell values. Nils sort last; numbers compare
// numerically; values of different kinds compare by kind name.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}

	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
