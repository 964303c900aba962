package explore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declwidgets/declwidgets/internal/frame"
)

type binderFunc func(name string, f *frame.Frame) error

func (b binderFunc) BindFrame(name string, f *frame.Frame) error { return b(name, f) }

func TestRender(t *testing.T) {
	out, err := Render("sales", "", map[string]any{
		"selection-as-object": false,
		"autoplot":            true,
		"limit":               5,
	}, map[string]string{"selection": "sel"})
	require.NoError(t, err)

	assert.Contains(t, out, `<template is="urth-core-bind" channel="default">`)
	assert.Contains(t, out, `<urth-viz-explorer ref="sales" autoplot limit="5" selection="{{sel}}"></urth-viz-explorer>`)
	assert.NotContains(t, out, "selection-as-object")
	assert.Contains(t, out, `href="urth_components/declarativewidgets-explorer/urth-viz-explorer.html"`)
}

func TestRender_EscapesValues(t *testing.T) {
	out, err := Render(`a"b`, "c<d", map[string]any{"title": `x" onload="y`}, nil)
	require.NoError(t, err)

	assert.NotContains(t, out, `onload="y"`)
	assert.Contains(t, out, `title="x&#34; onload=&#34;y"`)
}

func TestExplorer_BindsFrames(t *testing.T) {
	bound := map[string]*frame.Frame{}
	e := NewExplorer(binderFunc(func(name string, f *frame.Frame) error {
		bound[name] = f
		return nil
	}))

	f := frame.New([]string{"a"}, [][]any{{1}})
	out, err := e.Explore(f, "ch", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `ref="unique_explore_df_name_1"`)
	assert.Same(t, f, bound["unique_explore_df_name_1"])

	_, err = e.Explore(f, "ch", nil, nil)
	require.NoError(t, err)
	assert.Len(t, bound, 2)

	out, err = e.Explore("existing", "ch", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `ref="existing"`)
	assert.Len(t, bound, 2)
}

func TestExplorer_Errors(t *testing.T) {
	e := NewExplorer(binderFunc(func(string, *frame.Frame) error { return errors.New("full") }))

	_, err := e.Explore(frame.New(nil, nil), "", nil, nil)
	assert.Error(t, err)

	_, err = e.Explore(42, "", nil, nil)
	assert.Error(t, err)
}
