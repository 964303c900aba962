package function

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Wire-level type tags
const (
	TypeNumber  = "Number"
	TypeBoolean = "Boolean"
	TypeString  = "String"
	TypeArray   = "Array"
	TypeObject  = "Object"
	TypeNone    = "NoneType"
)

// Param describes one parameter of an exposed function
type Param struct {
	// Name is the parameter name used in argument maps
	Name string
	// Type is the declared type; nil or an interface type means untyped
	Type reflect.Type
	// Default is the value used when the argument is omitted
	Default any
	// HasDefault reports whether Default is set (a nil default is allowed)
	HasDefault bool
}

// Arg describes a parameter of type t without a default
func Arg(name string, t reflect.Type) Param {
	return Param{Name: name, Type: t}
}

// ArgOf describes a parameter of type T without a default
func ArgOf[T any](name string) Param {
	return Param{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// Optional describes a parameter whose type is inferred from its default
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Untyped describes a parameter with neither a type nor a default
func Untyped(name string) Param {
	return Param{Name: name}
}

// Inferred returns the type used for the parameter, or nil when unknown
func (p Param) Inferred() reflect.Type {
	if p.HasDefault {
		if p.Default == nil {
			return nil
		}
		return reflect.TypeOf(p.Default)
	}
	if p.Type == nil || p.Type.Kind() == reflect.Interface {
		return nil
	}
	return p.Type
}

// Required reports whether the parameter has no default
func (p Param) Required() bool {
	return !p.HasDefault
}

// TypeName maps a Go type to its wire-level type tag. Pointers are named by
// their element type. Types outside the built-in tags are named by package
// path and type name.
func TypeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() == reflect.Interface {
		return TypeNone
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeString
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map:
		return TypeObject
	}

	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// ParamSpec is the wire description of one parameter
type ParamSpec struct {
	Type     string
	Required bool
	Value    any
	HasValue bool
}

// MarshalJSON emits {"type", "required"?, "value"?}; value is present whenever
// the parameter has a default, even a zero one
func (s ParamSpec) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": s.Type}
	if s.Required {
		out["required"] = true
	}
	if s.HasValue {
		out["value"] = s.Value
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON
func (s *ParamSpec) UnmarshalJSON(data []byte) error {
	var in struct {
		Type     string          `json:"type"`
		Required bool            `json:"required"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*s = ParamSpec{Type: in.Type, Required: in.Required}
	if in.Value != nil {
		s.HasValue = true
		if err := json.Unmarshal(in.Value, &s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Descriptor maps parameter names to their wire description
type Descriptor map[string]ParamSpec

// SignatureSpec builds the signature descriptor of fn
func SignatureSpec(fn *Function) Descriptor {
	d := make(Descriptor, len(fn.Params))
	for _, p := range fn.Params {
		d[p.Name] = ParamSpec{
			Type:     TypeName(p.Inferred()),
			Required: p.Required(),
			Value:    p.Default,
			HasValue: p.HasDefault,
		}
	}
	return d
}

// ParameterTypes returns the coercion kind of every parameter of fn
func ParameterTypes(fn *Function) map[string]Kind {
	types := make(map[string]Kind, len(fn.Params))
	for _, p := range fn.Params {
		types[p.Name] = KindOf(p.Inferred())
	}
	return types
}

// RequiredParameters returns the names of the parameters without defaults,
// in declaration order
func RequiredParameters(fn *Function) []string {
	var names []string
	for _, p := range fn.Params {
		if p.Required() {
			names = append(names, p.Name)
		}
	}
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
