package function

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var (
	// ErrInvalidValue marks a malformed literal or malformed JSON text
	ErrInvalidValue = errors.New("invalid value")
	// ErrTypeMismatch marks a value whose dynamic type cannot be coerced
	ErrTypeMismatch = errors.New("type mismatch")
)

// Kind is the coercion bucket of a parameter
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindList
	KindMap
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindOther:
		return "other"
	default:
		return "none"
	}
}

// KindOf returns the coercion bucket of t
func KindOf(t reflect.Type) Kind {
	if t == nil || t.Kind() == reflect.Interface {
		return KindNone
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		return KindList
	case reflect.Map:
		return KindMap
	default:
		return KindOther
	}
}

// ConversionError reports an argument that could not be coerced
type ConversionError struct {
	Value any
	Type  Kind
	Param string
	// Err is ErrInvalidValue or ErrTypeMismatch
	Err error
}

func (e *ConversionError) Error() string {
	if errors.Is(e.Err, ErrTypeMismatch) {
		return fmt.Sprintf("value %v of type %T could not be converted to inferred type %s for argument %s",
			e.Value, e.Value, e.Type, e.Param)
	}
	return fmt.Sprintf("value %v could not be converted to inferred type %s for argument %s",
		e.Value, e.Type, e.Param)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// ConvertArgs coerces every argument with a known kind. Arguments missing
// from spec, or whose kind is KindNone or KindOther, are passed through.
func ConvertArgs(args map[string]any, spec map[string]Kind) (map[string]any, error) {
	converted := make(map[string]any, len(args))
	for _, name := range sortedKeys(args) {
		val := args[name]
		kind, ok := spec[name]
		if !ok {
			converted[name] = val
			continue
		}

		out, err := convert(val, kind)
		if err != nil {
			return nil, &ConversionError{Value: val, Type: kind, Param: name, Err: err}
		}
		converted[name] = out
	}
	return converted, nil
}

func convert(val any, kind Kind) (any, error) {
	switch kind {
	case KindInt:
		return toInt(val)
	case KindFloat:
		return toFloat(val)
	case KindBool:
		return toBool(val)
	case KindString:
		return toString(val)
	case KindList:
		return toList(val)
	case KindMap:
		return toMap(val)
	default:
		return val, nil
	}
}

func toInt(val any) (any, error) {
	switch v := val.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, ErrInvalidValue
		}
		return n, nil
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return nil, ErrInvalidValue
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt || v >= -math.MinInt {
			return nil, ErrInvalidValue
		}
		return int(v), nil
	case float32:
		return toInt(float64(v))
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < math.MinInt || n > math.MaxInt {
			return nil, ErrInvalidValue
		}
		return int(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt {
			return nil, ErrInvalidValue
		}
		return int(n), nil
	}
	return nil, ErrTypeMismatch
}

func toFloat(val any) (any, error) {
	switch v := val.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, ErrInvalidValue
		}
		return f, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, ErrInvalidValue
		}
		return f, nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, ErrTypeMismatch
}

func toBool(val any) (any, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, nil
		}
		return v != "", nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	case reflect.Slice, reflect.Map:
		return rv.Len() != 0, nil
	}
	return nil, ErrTypeMismatch
}

func toString(val any) (any, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case nil:
		return nil, ErrTypeMismatch
	case fmt.Stringer:
		return v.String(), nil
	}

	switch reflect.ValueOf(val).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool:
		return fmt.Sprint(val), nil
	}
	return nil, ErrTypeMismatch
}

func toList(val any) (any, error) {
	switch v := val.(type) {
	case []any:
		return v, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
			return nil, ErrInvalidValue
		}
		return out, nil
	}
	return nil, ErrTypeMismatch
}

func toMap(val any) (any, error) {
	switch v := val.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
			return nil, ErrInvalidValue
		}
		return out, nil
	}
	return nil, ErrTypeMismatch
}
