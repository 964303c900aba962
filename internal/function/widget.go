package function

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/serialize"
)

// Events accepted by a bound function widget
const (
	EventInvoke = "invoke"
	EventSync   = "sync"
)

// ErrUnbound is returned when a widget is used before Bind
var ErrUnbound = errors.New("function widget is not bound")

// State is the lifecycle state of a widget
type State int

const (
	StateUnbound State = iota
	StateBound
	StateInvoking
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateInvoking:
		return "invoking"
	default:
		return "unbound"
	}
}

// Sender delivers state updates to the front end that owns the widget
type Sender interface {
	SendUpdate(ctx context.Context, state map[string]any) error
}

// Message is an inbound event for a function widget
type Message struct {
	Event string         `json:"event"`
	Args  map[string]any `json:"args,omitempty"`
}

// Widget is one front-end element bound to a named function
type Widget struct {
	mu         sync.Mutex
	ns         *Namespace
	sender     Sender
	serializer *serialize.Serializer
	logger     *zap.Logger
	name       string
	limit      int
	inflight   int
}

// WidgetOption configures a Widget
type WidgetOption func(*Widget)

// WithSerializer sets the serializer for invocation results
func WithSerializer(s *serialize.Serializer) WidgetOption {
	return func(w *Widget) { w.serializer = s }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) WidgetOption {
	return func(w *Widget) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithResultLimit sets the row/item cap applied to results
func WithResultLimit(limit int) WidgetOption {
	return func(w *Widget) { w.SetLimit(limit) }
}

// NewWidget creates an unbound widget resolving names in ns
func NewWidget(ns *Namespace, sender Sender, opts ...WidgetOption) *Widget {
	w := &Widget{
		ns:         ns,
		sender:     sender,
		serializer: serialize.Default(),
		logger:     zap.NewNop(),
		limit:      serialize.DefaultLimit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetLimit sets the row/item cap; non-positive values restore the default
func (w *Widget) SetLimit(limit int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if limit <= 0 {
		limit = serialize.DefaultLimit
	}
	w.limit = limit
}

// State returns the current lifecycle state
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.name == "":
		return StateUnbound
	case w.inflight > 0:
		return StateInvoking
	default:
		return StateBound
	}
}

// FunctionName returns the bound function name
func (w *Widget) FunctionName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// Bind binds the widget to a function name and publishes its signature
func (w *Widget) Bind(ctx context.Context, name string) error {
	fn, err := w.ns.Lookup(name)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.name = name
	w.mu.Unlock()

	w.logger.Info("binding to function", zap.String("function", name))
	return w.publishSignature(ctx, fn)
}

// Sync republishes the signature of the bound function
func (w *Widget) Sync(ctx context.Context) error {
	fn, err := w.function()
	if err != nil {
		return err
	}
	return w.publishSignature(ctx, fn)
}

// HandleMessage dispatches an inbound widget event
func (w *Widget) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Event {
	case EventInvoke:
		return w.Invoke(ctx, msg.Args)
	case EventSync:
		return w.Sync(ctx)
	default:
		return nil
	}
}

// Invoke calls the bound function with converted args and publishes the
// serialized result
func (w *Widget) Invoke(ctx context.Context, args map[string]any) error {
	fn, err := w.function()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.inflight++
	limit := w.limit
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.inflight--
		w.mu.Unlock()
	}()

	logger := w.logger.With(zap.String("function", fn.Name))
	logger.Debug("invoking function", zap.Any("args", args))

	result, err := ApplyWithConversion(ctx, fn, args)
	if err != nil {
		return err
	}

	serialized, err := w.serializer.Serialize(result, serialize.WithLimit(limit))
	if err != nil {
		return fmt.Errorf("failed to serialize result of %s: %w", fn.Name, err)
	}

	return w.sender.SendUpdate(ctx, map[string]any{"result": serialized})
}

func (w *Widget) function() (*Function, error) {
	name := w.FunctionName()
	if name == "" {
		return nil, ErrUnbound
	}
	return w.ns.Lookup(name)
}

func (w *Widget) publishSignature(ctx context.Context, fn *Function) error {
	return w.sender.SendUpdate(ctx, map[string]any{"signature": SignatureSpec(fn)})
}

// DecodeMessage parses a raw widget event
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed function message: %w", err)
	}
	return msg, nil
}
