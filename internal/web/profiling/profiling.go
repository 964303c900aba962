// Package profiling mounts pprof and a runtime stats endpoint on the kernel
// router. Both expose process internals and are off unless configured.
package profiling

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// StatsFunc reports application counters merged into the stats response
type StatsFunc func() map[string]any

// Mount registers the pprof handlers under prefix+"/pprof" and the stats
// handler at prefix+"/stats"
func Mount(router chi.Router, prefix string, stats StatsFunc) {
	router.Route(prefix, func(r chi.Router) {
		r.Get("/stats", StatsHandler(stats))

		r.Route("/pprof", func(r chi.Router) {
			r.HandleFunc("/", pprof.Index)
			r.HandleFunc("/cmdline", pprof.Cmdline)
			r.HandleFunc("/profile", pprof.Profile)
			r.HandleFunc("/symbol", pprof.Symbol)
			r.HandleFunc("/trace", pprof.Trace)

			for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
				r.Handle("/"+name, pprof.Handler(name))
			}
		})
	})
}

// RuntimeStats returns goroutine, memory and cpu counters
func RuntimeStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"num_gc":      m.NumGC,
		},
		"cpu": map[string]any{
			"num_cpu":      runtime.NumCPU(),
			"num_cgo_call": runtime.NumCgoCall(),
		},
	}
}

// StatsHandler serves RuntimeStats with the application counters under "app"
func StatsHandler(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := RuntimeStats()
		if stats != nil {
			out["app"] = stats()
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
}
