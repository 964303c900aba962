package serialize

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declwidgets/declwidgets/internal/frame"
)

type stubAdapter struct {
	name      string
	available bool
	handles   func(any) bool
	out       any
	err       error
}

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Available() bool { return s.available }
func (s stubAdapter) CanHandle(v any) bool { return s.handles(v) }
func (s stubAdapter) Serialize(any, Options) (any, error) { return s.out, s.err }

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		dtype string
		want  string
	}{
		{"int64", "Number"},
		{"int32", "Number"},
		{"float64", "Number"},
		{"bigint", "Number"},
		{"double", "Number"},
		{"bool", "Boolean"},
		{"boolean", "Boolean"},
		{"string", "String"},
		{"datetime64[ns]", "Date"},
		{"date", "Date"},
		{"object", "Unknown"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.dtype, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeType(tt.dtype))
		})
	}
}

func TestSerializer_AdapterOrder(t *testing.T) {
	always := func(any) bool { return true }
	s := New(
		stubAdapter{name: "missing", available: false, handles: always, out: "missing"},
		stubAdapter{name: "first", available: true, handles: always, out: "first"},
		stubAdapter{name: "second", available: true, handles: always, out: "second"},
	)

	assert.Equal(t, []string{"first", "second"}, s.Adapters())

	out, err := s.Serialize(42)
	require.NoError(t, err)
	assert.Equal(t, "first", out)
}

func TestSerializer_AdapterError(t *testing.T) {
	s := New(stubAdapter{
		name:      "broken",
		available: true,
		handles:   func(any) bool { return true },
		err:       errors.New("boom"),
	})

	_, err := s.Serialize("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestSerializer_Fallback(t *testing.T) {
	s := Default()

	out, err := s.Serialize(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, out)

	out, err = s.Serialize(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	// channels cannot be encoded as JSON
	ch := make(chan int)
	out, err = s.Serialize(ch)
	require.NoError(t, err)
	assert.IsType(t, "", out)
}

func TestFrameAdapter_SplitOrientation(t *testing.T) {
	f := frame.New([]string{"name", "age"}, [][]any{
		{"ada", 36},
		{"alan", 41},
		{"grace", 85},
	})

	out, err := Default().Serialize(f, WithLimit(2))
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, []string{"name", "age"}, m["columns"])
	assert.Equal(t, []any{0, 1}, m["index"])
	assert.Equal(t, [][]any{{"ada", 36}, {"alan", 41}}, m["data"])
	assert.Equal(t, []string{"String", "Number"}, m["columnTypes"])
}

func TestFrameAdapter_ColumnTypesOverride(t *testing.T) {
	f := frame.New([]string{"a"}, [][]any{{"1"}})

	out, err := Default().Serialize(f, WithColumnTypes("int64"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Number"}, out.(map[string]any)["columnTypes"])
}

func TestFrameAdapter_Dates(t *testing.T) {
	naive := time.Date(2016, 3, 1, 10, 30, 0, 0, time.UTC)
	zoned := time.Date(2016, 3, 1, 10, 30, 0, 0, time.FixedZone("EST", -5*3600))

	f := frame.New([]string{"when"}, [][]any{{naive}, {zoned}})

	out, err := Default().Serialize(f)
	require.NoError(t, err)

	data := out.(map[string]any)["data"].([][]any)
	assert.Equal(t, "2016-03-01 10:30:00.000", data[0][0])
	assert.Equal(t, "2016-03-01T10:30:00.000-05:00", data[1][0])
	assert.Equal(t, []string{"Date"}, out.(map[string]any)["columnTypes"])

	out, err = Default().Serialize(f, WithDateFormat("epoch"))
	require.NoError(t, err)
	data = out.(map[string]any)["data"].([][]any)
	assert.Equal(t, naive.UnixMilli(), data[0][0])
}

func TestSeriesAdapter_IndexOrientation(t *testing.T) {
	s := &frame.Series{
		Name:   "score",
		Index:  []any{"a", "b"},
		Values: []any{1.5, 2.5},
	}

	out, err := Default().Serialize(s)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.5, "b": 2.5}, out)

	positional := &frame.Series{Values: []any{true, false}}
	out, err = Default().Serialize(positional)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"0": true, "1": false}, out)
}

func TestImageAdapter_DataURI(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	out, err := Default().Serialize(img)
	require.NoError(t, err)

	uri, ok := out.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	assert.NotContains(t, uri, "\n")
}

type point struct{ X, Y int }

func (p point) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{p.X, p.Y})
}

func TestMarshalerAdapter(t *testing.T) {
	out, err := Default().Serialize(point{1, 2})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`[1,2]`), out)
}

func TestNewOptions_Defaults(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, DefaultLimit, o.Limit)
	assert.Equal(t, "iso", o.DateFormat)
	assert.Empty(t, o.ColumnTypes)
}
