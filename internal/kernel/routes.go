package kernel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/install"
	"github.com/declwidgets/declwidgets/internal/web/middleware"
	"github.com/declwidgets/declwidgets/internal/web/profiling"
	"github.com/declwidgets/declwidgets/internal/web/ratelimit"
	"github.com/declwidgets/declwidgets/internal/web/rpcapi"
)

type installRequest struct {
	Package string `json:"package"`
}

// Routes returns the kernel HTTP handler:
//
//	GET  {base}/ws                  websocket comm transport
//	POST {base}/urth_import         install a package, body {"package": ...}
//	GET  {base}/urth_import         installed packages
//	GET  {base}/urth_import/jobs    recent install jobs
//	GET  {base}/urth_components/*   installed component files
//	POST {base}/rpc                 JSON-RPC 2.0 Kernel service
//	GET  {base}/debug/stats         runtime and kernel counters (Profiling)
//	GET  {base}/debug/pprof/*       pprof handlers (Profiling)
func (k *Kernel) Routes() (http.Handler, error) {
	prefix := strings.TrimSuffix(k.cfg.BaseURL, "/")

	rpcHandler, err := rpcapi.Handler(k, k.logger.Named("rpc"))
	if err != nil {
		return nil, fmt.Errorf("failed to register rpc service: %w", err)
	}

	r := chi.NewRouter()
	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Recovery(k.logger),
		middleware.Logging(k.logger.Named("http")),
	)
	if len(k.cfg.AllowedOrigins) > 0 {
		chain.Use(middleware.CORS(k.cfg.AllowedOrigins...))
	}
	r.Use(chain.Middlewares()...)

	r.Get(prefix+"/ws", k.ws.Handler())
	if k.cfg.InstallRate > 0 {
		limiter := ratelimit.NewTokenBucket(k.cfg.InstallRate, time.Minute)
		k.limiters = append(k.limiters, limiter)
		r.With(ratelimit.Middleware(limiter, nil, k.logger.Named("ratelimit"))).
			Post(prefix+"/urth_import", k.handleInstall)
	} else {
		r.Post(prefix+"/urth_import", k.handleInstall)
	}
	r.Get(prefix+"/urth_import", k.handleList)
	r.Get(prefix+"/urth_import/jobs", k.handleJobs)
	r.Post(prefix+"/rpc", rpcHandler.ServeHTTP)

	if k.cfg.ComponentsDir != "" {
		components := prefix + "/urth_components/"
		r.Handle(components+"*", http.StripPrefix(components, http.FileServer(http.Dir(k.cfg.ComponentsDir))))
	}

	if k.cfg.Profiling {
		profiling.Mount(r, prefix+"/debug", k.Stats)
	}

	return r, nil
}

// handleInstall queues a package install and answers once it has run
func (k *Kernel) handleInstall(w http.ResponseWriter, r *http.Request) {
	if k.cfg.Queue == nil {
		http.Error(w, "package installs are disabled", http.StatusNotImplemented)
		return
	}

	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid install request", http.StatusBadRequest)
		return
	}

	logger := k.logger.With(middleware.RequestIDField(r.Context()), zap.String("package", req.Package))

	ticket, err := k.cfg.Queue.Submit(r.Context(), req.Package)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, install.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	if err := ticket.Wait(r.Context()); err != nil {
		logger.Warn("install failed", zap.String("job_id", ticket.Job.ID.String()), zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to install %s.", req.Package), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, ticket.Job)
}

func (k *Kernel) handleList(w http.ResponseWriter, r *http.Request) {
	if k.cfg.Packages == nil {
		http.Error(w, "package listing is disabled", http.StatusNotImplemented)
		return
	}

	listing, err := k.cfg.Packages.List(r.Context())
	if err != nil {
		k.logger.Warn("failed to list packages", middleware.RequestIDField(r.Context()), zap.Error(err))
		http.Error(w, "Failed to list bower packages", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (k *Kernel) handleJobs(w http.ResponseWriter, r *http.Request) {
	if k.cfg.History == nil {
		http.Error(w, "install history is disabled", http.StatusNotImplemented)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := k.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		k.logger.Error("failed to read install history", middleware.RequestIDField(r.Context()), zap.Error(err))
		http.Error(w, "failed to read install history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
