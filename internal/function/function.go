package function

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrMissingArgument is returned when a required argument is absent
	ErrMissingArgument = errors.New("missing required argument")

	// ErrPanic wraps a panic raised by a function body
	ErrPanic = errors.New("function panicked")
)

// Func is the uniform calling convention of exposed functions
type Func func(ctx context.Context, args map[string]any) (any, error)

// Function is a named callable with precomputed parameter descriptors
type Function struct {
	Name   string
	Params []Param
	Call   Func
}

// New creates a function from explicit descriptors and a call body
func New(name string, call Func, params ...Param) *Function {
	return &Function{Name: name, Params: params, Call: call}
}

// Param returns the descriptor of the named parameter
func (f *Function) Param(name string) (Param, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// FromFunc wraps an ordinary Go func. params name the func's parameters in
// order; a nil Param.Type is filled in from the func signature. The func may
// take a leading context.Context and may return a value, an error, or both.
func FromFunc(name string, fn any, params ...Param) (*Function, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("function %s: expected a func, got %T", name, fn)
	}
	ft := fv.Type()

	offset := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		offset = 1
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("function %s: variadic funcs are not supported", name)
	}
	if ft.NumIn()-offset != len(params) {
		return nil, fmt.Errorf("function %s: %d parameter names for %d parameters",
			name, len(params), ft.NumIn()-offset)
	}

	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("function %s: second result must be an error", name)
		}
	default:
		return nil, fmt.Errorf("function %s: too many results", name)
	}

	described := make([]Param, len(params))
	for i, p := range params {
		if p.Type == nil {
			p.Type = ft.In(i + offset)
		}
		described[i] = p
	}

	call := func(ctx context.Context, args map[string]any) (any, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if offset == 1 {
			in = append(in, reflect.ValueOf(ctx))
		}

		for i, p := range described {
			v, err := argument(p, args)
			if err != nil {
				return nil, err
			}
			rv, err := assign(v, ft.In(i+offset))
			if err != nil {
				return nil, &ConversionError{Value: v, Type: KindOf(ft.In(i + offset)), Param: p.Name, Err: err}
			}
			in = append(in, rv)
		}

		return results(fv.Call(in))
	}

	return &Function{Name: name, Params: described, Call: call}, nil
}

// MustFromFunc is like FromFunc but panics on error
func MustFromFunc(name string, fn any, params ...Param) *Function {
	f, err := FromFunc(name, fn, params...)
	if err != nil {
		panic(err)
	}
	return f
}

func argument(p Param, args map[string]any) (any, error) {
	if v, ok := args[p.Name]; ok {
		return v, nil
	}
	if p.HasDefault {
		return p.Default, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingArgument, p.Name)
}

func results(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errorType {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// assign converts v to a value of type t
func assign(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch {
	case isNumeric(rv.Kind()) && isNumeric(t.Kind()):
		return rv.Convert(t), nil
	case rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t):
		return rv.Convert(t), nil
	case t.Kind() == reflect.Slice && rv.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := assign(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case t.Kind() == reflect.Map && rv.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			elem, err := assign(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(reflect.ValueOf(iter.Key().String()).Convert(t.Key()), elem)
		}
		return out, nil
	}

	return reflect.Value{}, ErrTypeMismatch
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ApplyWithConversion coerces args to fn's inferred parameter kinds and
// calls fn. A panic in fn is returned as an error wrapping ErrPanic.
func ApplyWithConversion(ctx context.Context, fn *Function, args map[string]any) (result any, err error) {
	converted, err := ConvertArgs(args, ParameterTypes(fn))
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrPanic, fn.Name, r)
		}
	}()
	return fn.Call(ctx, converted)
}
