package kernel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/declwidgets/declwidgets/internal/frame"
	"github.com/declwidgets/declwidgets/internal/function"
)

// DemoFrame is the sample table exposed by RegisterDemo
func DemoFrame() *frame.Frame {
	return frame.New([]string{"name", "city", "age"}, [][]any{
		{"ada", "london", 36},
		{"grace", "new york", 45},
		{"alan", "london", 41},
		{"linus", "portland", 28},
		{"barbara", "austin", 52},
	})
}

// RegisterDemo exposes a few example functions and wires a greeting on the
// default channel: setting "name" publishes "greeting".
func RegisterDemo(ctx context.Context, k *Kernel) error {
	fns := []*function.Function{
		function.MustFromFunc("add", func(a, b int) int { return a + b },
			function.Untyped("a"), function.Untyped("b")),
		function.MustFromFunc("greet", func(name string, excited bool) string {
			greeting := "Hello, " + name
			if excited {
				return greeting + "!"
			}
			return greeting + "."
		}, function.Untyped("name"), function.Optional("excited", false)),
		function.MustFromFunc("stats", func(values []float64) map[string]float64 {
			out := map[string]float64{"count": float64(len(values))}
			if len(values) == 0 {
				return out
			}
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			var sum float64
			for _, v := range sorted {
				sum += v
			}
			out["sum"] = sum
			out["mean"] = sum / float64(len(sorted))
			out["min"] = sorted[0]
			out["max"] = sorted[len(sorted)-1]
			return out
		}, function.Untyped("values")),
	}
	for _, fn := range fns {
		if err := k.Register(fn); err != nil {
			return err
		}
	}

	if err := k.BindFrame("people", DemoFrame()); err != nil {
		return err
	}

	def := k.Channel("")
	def.Watch("name", func(_, newVal any) error {
		name, ok := newVal.(string)
		if !ok {
			return fmt.Errorf("name must be a string, got %T", newVal)
		}
		def.Set(ctx, "greeting", "Hello, "+strings.TrimSpace(name))
		return nil
	})
	def.Set(ctx, "greeting", "Hello, world")
	return nil
}
