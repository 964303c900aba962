// Package explore renders the explorer element bound to a frame on a channel
package explore

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strings"
	"sync"

	"github.com/declwidgets/declwidgets/internal/channels"
	"github.com/declwidgets/declwidgets/internal/frame"
)

var explorerTemplate = template.Must(template.New("explorer").Parse(
	`<link rel="import" href="urth_components/declarativewidgets-explorer/urth-viz-explorer.html" is="urth-core-import" package="jupyter-incubator/declarativewidgets_explorer">
<template is="urth-core-bind" channel="{{.Channel}}">
    <urth-viz-explorer ref="{{.Ref}}" {{.Attrs}}></urth-viz-explorer>
</template>
`))

// FrameBinder makes a frame reachable from the front end under a name
type FrameBinder interface {
	BindFrame(name string, f *frame.Frame) error
}

// Explorer renders explorer elements, binding anonymous frames to generated
// names
type Explorer struct {
	binder FrameBinder

	mu   sync.Mutex
	next int
}

// NewExplorer creates an explorer that binds frames through binder
func NewExplorer(binder FrameBinder) *Explorer {
	return &Explorer{binder: binder}
}

// Explore renders an explorer for data, which is either a frame or the name
// of an already bound frame
func (e *Explorer) Explore(data any, channel string, properties map[string]any, bindings map[string]string) (string, error) {
	var ref string
	switch v := data.(type) {
	case string:
		ref = v
	case *frame.Frame:
		e.mu.Lock()
		e.next++
		ref = fmt.Sprintf("unique_explore_df_name_%d", e.next)
		e.mu.Unlock()

		if err := e.binder.BindFrame(ref, v); err != nil {
			return "", fmt.Errorf("failed to bind frame %s: %w", ref, err)
		}
	default:
		return "", fmt.Errorf("cannot explore value of type %T", data)
	}

	return Render(ref, channel, properties, bindings)
}

// Render returns the HTML of an explorer element for ref on channel. True
// boolean properties render as bare attributes and false ones are omitted;
// bindings render as {{name}} expressions.
func Render(ref, channel string, properties map[string]any, bindings map[string]string) (string, error) {
	if channel == "" {
		channel = channels.DefaultChannel
	}

	var attrs []string
	for _, k := range sortedKeys(properties) {
		name := html.EscapeString(k)
		switch v := properties[k].(type) {
		case bool:
			if v {
				attrs = append(attrs, name)
			}
		default:
			attrs = append(attrs, fmt.Sprintf(`%s="%s"`, name, html.EscapeString(fmt.Sprint(v))))
		}
	}

	bindingKeys := make([]string, 0, len(bindings))
	for k := range bindings {
		bindingKeys = append(bindingKeys, k)
	}
	sort.Strings(bindingKeys)
	for _, k := range bindingKeys {
		attrs = append(attrs, fmt.Sprintf(`%s="{{%s}}"`, html.EscapeString(k), html.EscapeString(bindings[k])))
	}

	var buf bytes.Buffer
	err := explorerTemplate.Execute(&buf, map[string]any{
		"Channel": channel,
		"Ref":     ref,
		"Attrs":   template.HTMLAttr(strings.Join(attrs, " ")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render explorer: %w", err)
	}
	return buf.String(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
