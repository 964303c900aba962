package function

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declwidgets/declwidgets/internal/frame"
)

type recorder struct {
	mu      sync.Mutex
	updates []map[string]any
}

func (r *recorder) SendUpdate(_ context.Context, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, state)
	return nil
}

func (r *recorder) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return nil
	}
	return r.updates[len(r.updates)-1]
}

func testNamespace(t *testing.T) *Namespace {
	ns := NewNamespace()
	require.NoError(t, ns.Register(MustFromFunc("double",
		func(n int) int { return n * 2 },
		Untyped("n"),
	)))
	require.NoError(t, ns.Register(MustFromFunc("table",
		func(rows int) *frame.Frame {
			data := make([][]any, rows)
			for i := range data {
				data[i] = []any{i}
			}
			return frame.New([]string{"i"}, data)
		},
		Optional("rows", 5),
	)))
	return ns
}

func TestWidget_BindPublishesSignature(t *testing.T) {
	rec := &recorder{}
	w := NewWidget(testNamespace(t), rec)
	assert.Equal(t, StateUnbound, w.State())

	require.NoError(t, w.Bind(context.Background(), "double"))
	assert.Equal(t, StateBound, w.State())
	assert.Equal(t, "double", w.FunctionName())

	sig, ok := rec.last()["signature"].(Descriptor)
	require.True(t, ok)
	assert.Equal(t, ParamSpec{Type: TypeNumber, Required: true}, sig["n"])
}

func TestWidget_BindUnknownFunction(t *testing.T) {
	w := NewWidget(testNamespace(t), &recorder{})

	err := w.Bind(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateUnbound, w.State())
}

func TestWidget_InvokeBeforeBind(t *testing.T) {
	w := NewWidget(testNamespace(t), &recorder{})

	err := w.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestWidget_Invoke(t *testing.T) {
	rec := &recorder{}
	w := NewWidget(testNamespace(t), rec)
	require.NoError(t, w.Bind(context.Background(), "double"))

	err := w.HandleMessage(context.Background(), Message{Event: EventInvoke, Args: map[string]any{"n": "21"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 42}, rec.last())
	assert.Equal(t, StateBound, w.State())
}

func TestWidget_InvokeConversionError(t *testing.T) {
	rec := &recorder{}
	w := NewWidget(testNamespace(t), rec)
	require.NoError(t, w.Bind(context.Background(), "double"))

	err := w.Invoke(context.Background(), map[string]any{"n": "1.5"})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, StateBound, w.State())
}

func TestWidget_InvokePanicRecovers(t *testing.T) {
	ns := testNamespace(t)
	require.NoError(t, ns.Register(MustFromFunc("boom",
		func(n int) int {
			var m map[string]int
			m["n"] = n
			return n
		},
		Untyped("n"),
	)))

	rec := &recorder{}
	w := NewWidget(ns, rec)
	require.NoError(t, w.Bind(context.Background(), "boom"))

	var err error
	assert.NotPanics(t, func() {
		err = w.HandleMessage(context.Background(), Message{Event: EventInvoke, Args: map[string]any{"n": "1"}})
	})
	assert.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "boom")
	assert.NotContains(t, rec.last(), "result")
	assert.Equal(t, StateBound, w.State())

	require.NoError(t, w.Bind(context.Background(), "double"))
	require.NoError(t, w.Invoke(context.Background(), map[string]any{"n": "4"}))
	assert.Equal(t, map[string]any{"result": 8}, rec.last())
}

func TestWidget_ResultLimit(t *testing.T) {
	rec := &recorder{}
	w := NewWidget(testNamespace(t), rec, WithResultLimit(2))
	require.NoError(t, w.Bind(context.Background(), "table"))

	require.NoError(t, w.Invoke(context.Background(), map[string]any{"rows": "10"}))

	result := rec.last()["result"].(map[string]any)
	assert.Len(t, result["data"], 2)

	w.SetLimit(0)
	require.NoError(t, w.Invoke(context.Background(), nil))
	result = rec.last()["result"].(map[string]any)
	assert.Len(t, result["data"], 5)
}

func TestWidget_SyncRepublishesSignature(t *testing.T) {
	rec := &recorder{}
	w := NewWidget(testNamespace(t), rec)
	require.NoError(t, w.Bind(context.Background(), "table"))

	require.NoError(t, w.HandleMessage(context.Background(), Message{Event: EventSync}))
	assert.Len(t, rec.updates, 2)
	assert.Contains(t, rec.last(), "signature")

	require.NoError(t, w.HandleMessage(context.Background(), Message{Event: "other"}))
	assert.Len(t, rec.updates, 2)
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"event": "invoke", "args": {"n": "1"}}`))
	require.NoError(t, err)
	assert.Equal(t, Message{Event: EventInvoke, Args: map[string]any{"n": "1"}}, msg)

	_, err = DecodeMessage([]byte(`{`))
	assert.Error(t, err)

	_, err = json.Marshal(msg)
	assert.NoError(t, err)
}
