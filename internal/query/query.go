// Package query applies front-end supplied filter, group and sort operations
// to frames before they are serialized.
//
// A query is an ordered list of items, each {"type": ..., "expr": ...}:
//
//	filter  "age > 30 && city == \"Austin\""
//	group   {"by": ["city"], "agg": [{"op": "sum", "col": "sales"}]}
//	sort    {"by": ["city", "age"], "ascending": [true, false]}
//
// Filter expressions use HCL expression syntax. Every column whose name is a
// valid identifier is a variable; all columns are also reachable through the
// "row" object (row["first name"]), and the row label through "index".
package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/declwidgets/declwidgets/internal/frame"
)

// ErrUnknownQuery is returned for query items with an unsupported type
var ErrUnknownQuery = errors.New("unknown query type")

// Query item types
const (
	TypeFilter = "filter"
	TypeGroup  = "group"
	TypeSort   = "sort"
)

// Item is one step of a query
type Item struct {
	Type string          `json:"type"`
	Expr json.RawMessage `json:"expr"`
}

// Parse decodes a JSON query
func Parse(data []byte) ([]Item, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("malformed query: %w", err)
	}
	return items, nil
}

// Apply runs every item in order against a copy of f. An empty query returns
// f itself.
func Apply(f *frame.Frame, items []Item) (*frame.Frame, error) {
	if len(items) == 0 {
		return f, nil
	}

	out := f.Clone()
	for i, item := range items {
		var err error
		switch item.Type {
		case TypeFilter:
			out, err = applyFilter(out, item.Expr)
		case TypeGroup:
			out, err = applyGroup(out, item.Expr)
		case TypeSort:
			out, err = applySort(out, item.Expr)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownQuery, item.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("query item %d (%s): %w", i, item.Type, err)
		}
	}
	return out, nil
}
