// Package serialize turns kernel values into JSON-safe representations for
// transmission to the front end.
//
// Values are matched against an ordered list of adapters. The first adapter
// that reports itself available and able to handle the value produces the
// wire form; anything left over goes through a JSON-safety fallback.
package serialize

import (
	"encoding/json"
	"fmt"
)

// DefaultLimit caps the rows/items emitted for collection values
const DefaultLimit = 100

// Options carries per-call serialization parameters
type Options struct {
	// Limit caps the number of rows/items serialized
	Limit int
	// DateFormat selects how dates are rendered ("iso" or "epoch")
	DateFormat string
	// ColumnTypes overrides the inferred dtype names of tabular values
	ColumnTypes []string
}

// Option mutates Options
type Option func(*Options)

// WithLimit sets the row/item cap
func WithLimit(limit int) Option {
	return func(o *Options) { o.Limit = limit }
}

// WithDateFormat sets the date rendering format
func WithDateFormat(format string) Option {
	return func(o *Options) { o.DateFormat = format }
}

// WithColumnTypes overrides the dtype names of tabular columns
func WithColumnTypes(types ...string) Option {
	return func(o *Options) { o.ColumnTypes = types }
}

// NewOptions applies opts on top of the defaults
func NewOptions(opts ...Option) Options {
	o := Options{Limit: DefaultLimit, DateFormat: "iso"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Adapter serializes one family of values
type Adapter interface {
	// Name identifies the adapter in logs
	Name() string
	// Available reports whether the adapter's dependencies are usable
	Available() bool
	// CanHandle reports whether the adapter serializes v
	CanHandle(v any) bool
	// Serialize returns the JSON-safe form of v
	Serialize(v any, opts Options) (any, error)
}

// Serializer dispatches values to registered adapters in order
type Serializer struct {
	adapters []Adapter
}

// New creates a serializer trying adapters in the given order
func New(adapters ...Adapter) *Serializer {
	s := &Serializer{}
	for _, a := range adapters {
		s.Register(a)
	}
	return s
}

// Default returns a serializer with the built-in adapters
func Default() *Serializer {
	return New(FrameAdapter{}, SeriesAdapter{}, ImageAdapter{}, MarshalerAdapter{})
}

// Register appends an adapter; adapters that are not available are skipped
func (s *Serializer) Register(a Adapter) {
	if a == nil || !a.Available() {
		return
	}
	s.adapters = append(s.adapters, a)
}

// Adapters returns the names of the registered adapters in dispatch order
func (s *Serializer) Adapters() []string {
	names := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		names[i] = a.Name()
	}
	return names
}

// Serialize converts v to its wire form
func (s *Serializer) Serialize(v any, opts ...Option) (any, error) {
	return s.SerializeWith(v, NewOptions(opts...))
}

// SerializeWith converts v to its wire form using explicit options
func (s *Serializer) SerializeWith(v any, o Options) (any, error) {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}

	for _, a := range s.adapters {
		if a.CanHandle(v) {
			out, err := a.Serialize(v, o)
			if err != nil {
				return nil, fmt.Errorf("%s serializer: %w", a.Name(), err)
			}
			return out, nil
		}
	}

	return fallback(v), nil
}

// fallback returns v unchanged when it encodes as JSON, or its string form
func fallback(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}

// MarshalerAdapter passes json.Marshaler values through as raw JSON
type MarshalerAdapter struct{}

func (MarshalerAdapter) Name() string { return "marshaler" }
func (MarshalerAdapter) Available() bool { return true }

func (MarshalerAdapter) CanHandle(v any) bool {
	_, ok := v.(json.Marshaler)
	return ok
}

func (MarshalerAdapter) Serialize(v any, _ Options) (any, error) {
	data, err := v.(json.Marshaler).MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
