// Package kernel connects the channel registry and the function bridge to
// browsers. It owns the websocket hub, routes comm messages to channels and
// function widgets, and serves the install and component routes.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/channels"
	"github.com/declwidgets/declwidgets/internal/explore"
	"github.com/declwidgets/declwidgets/internal/frame"
	"github.com/declwidgets/declwidgets/internal/function"
	"github.com/declwidgets/declwidgets/internal/install"
	"github.com/declwidgets/declwidgets/internal/query"
	"github.com/declwidgets/declwidgets/internal/serialize"
	"github.com/declwidgets/declwidgets/internal/store"
	"github.com/declwidgets/declwidgets/internal/web/ratelimit"
	"github.com/declwidgets/declwidgets/internal/web/websocket"
)

// Lister reports installed front-end packages
type Lister interface {
	List(ctx context.Context) (map[string]any, error)
}

// Config wires a Kernel. Only Logger may be left nil; everything else has
// a usable zero value except where noted.
type Config struct {
	Logger     *zap.Logger
	Serializer *serialize.Serializer
	// Store records published channel values; nil disables replay
	Store store.Store

	// Queue runs package installs; nil disables POST urth_import
	Queue *install.Queue
	// Packages lists installed packages; nil disables GET urth_import
	Packages Lister
	// History backs GET urth_import/jobs; optional. It should also be the
	// queue's recorder.
	History *install.History

	// BaseURL prefixes every route
	BaseURL string
	// ComponentsDir is served under urth_components
	ComponentsDir string
	// Limit caps serialized rows and items
	Limit int
	// ReplayOnConnect sends the recorded channel state to each browser
	// that opens the channels comm after the first
	ReplayOnConnect bool

	Codec          websocket.Codec
	Auth           websocket.AuthHandler
	AllowedOrigins []string

	// InstallRate caps POST urth_import per client per minute; 0 disables
	InstallRate int
	// Profiling mounts pprof and stats under {base}/debug
	Profiling bool
}

// Kernel is the running kernel side of the widgets
type Kernel struct {
	cfg    Config
	logger *zap.Logger

	// dispatch runs inbound messages one at a time
	dispatch sync.Mutex

	manager    *channels.Manager
	namespace  *function.Namespace
	serializer *serialize.Serializer
	explorer   *explore.Explorer
	ws         *websocket.Server

	widgetsMu sync.Mutex
	widgets   map[string]*comm

	// limiters built by Routes, stopped by Close
	limiters []*ratelimit.TokenBucket

	closeOnce sync.Once
	closeErr  error
}

// comm is a function widget bound to the browser that opened it
type comm struct {
	widget *function.Widget
	client *websocket.Client
}

// New builds a kernel. Call Start before serving Routes.
func New(ctx context.Context, cfg Config) *Kernel {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = serialize.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = serialize.DefaultLimit
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/"
	}

	k := &Kernel{
		cfg:        cfg,
		logger:     cfg.Logger,
		namespace:  function.NewNamespace(),
		serializer: cfg.Serializer,
		widgets:    make(map[string]*comm),
	}

	opts := []channels.Option{
		channels.WithSerializer(cfg.Serializer),
		channels.WithLimit(cfg.Limit),
		channels.WithLogger(cfg.Logger.Named("channels")),
	}
	if cfg.Store != nil {
		opts = append(opts, channels.WithStore(cfg.Store))
	}
	k.manager = channels.NewManager(opts...)
	k.explorer = explore.NewExplorer(k)

	hubOpts := []websocket.HubOption{
		websocket.WithCodec(cfg.Codec),
		websocket.WithLogger(cfg.Logger.Named("websocket")),
	}
	if cfg.Auth != nil {
		hubOpts = append(hubOpts, websocket.WithAuth(cfg.Auth))
	}
	k.ws = websocket.NewServer(ctx, &websocket.Config{AllowedOrigins: cfg.AllowedOrigins}, hubOpts...)
	k.registerHandlers(k.ws.Hub)

	return k
}

// Start runs the websocket hub
func (k *Kernel) Start() {
	k.ws.Start()
}

// Close disconnects every browser, stops the install queue and closes the
// store and the history. Later calls return the first result.
func (k *Kernel) Close() error {
	k.closeOnce.Do(func() {
		k.ws.Shutdown()
		k.manager.Disconnect()
		for _, l := range k.limiters {
			l.Close()
		}

		var errs []error
		if k.cfg.Queue != nil {
			errs = append(errs, k.cfg.Queue.Close())
		}
		if k.cfg.Store != nil {
			errs = append(errs, k.cfg.Store.Close())
		}
		if k.cfg.History != nil {
			errs = append(errs, k.cfg.History.Close())
		}
		k.closeErr = errors.Join(errs...)
	})
	return k.closeErr
}

// Stats reports connected browsers, open function comms and registered
// functions
func (k *Kernel) Stats() map[string]any {
	return map[string]any{
		"clients":   k.ws.Hub.ClientCount(),
		"comms":     k.Comms(),
		"functions": len(k.namespace.Names()),
		"connected": k.manager.Connected(),
	}
}

// Hub returns the websocket hub
func (k *Kernel) Hub() *websocket.Hub {
	return k.ws.Hub
}

// Channels returns the channel manager
func (k *Kernel) Channels() *channels.Manager {
	return k.manager
}

// Channel returns a handle for one channel; an empty name means "default"
func (k *Kernel) Channel(name string) *channels.Channel {
	return k.manager.Channel(name)
}

// Namespace returns the functions exposed to function widgets
func (k *Kernel) Namespace() *function.Namespace {
	return k.namespace
}

// Register exposes fn to function widgets
func (k *Kernel) Register(fn *function.Function) error {
	return k.namespace.Register(fn)
}

// Explore renders the explorer element for data bound to channel
func (k *Kernel) Explore(data any, channel string, properties map[string]any, bindings map[string]string) (string, error) {
	return k.explorer.Explore(data, channel, properties, bindings)
}

// BindFrame exposes f as a function taking an optional JSON query and
// returning the queried frame
func (k *Kernel) BindFrame(name string, f *frame.Frame) error {
	fn, err := function.FromFunc(name, func(q string) (*frame.Frame, error) {
		items, err := query.Parse([]byte(q))
		if err != nil {
			return nil, err
		}
		return query.Apply(f, items)
	}, function.Optional("query", "[]"))
	if err != nil {
		return err
	}
	return k.namespace.Register(fn)
}

// Invoke calls a registered function and returns its serialized result
func (k *Kernel) Invoke(ctx context.Context, name string, args map[string]any, limit int) (any, error) {
	fn, err := k.namespace.Lookup(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = k.cfg.Limit
	}

	k.dispatch.Lock()
	result, err := function.ApplyWithConversion(ctx, fn, args)
	k.dispatch.Unlock()
	if err != nil {
		return nil, err
	}

	serialized, err := k.serializer.Serialize(result, serialize.WithLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result of %s: %w", name, err)
	}
	return serialized, nil
}

// Signature describes a registered function
func (k *Kernel) Signature(name string) (function.Descriptor, error) {
	fn, err := k.namespace.Lookup(name)
	if err != nil {
		return nil, err
	}
	return function.SignatureSpec(fn), nil
}

// Set publishes value on (channel, key), buffering until a browser connects
func (k *Kernel) Set(ctx context.Context, channel, key string, value any) error {
	if channel == "" {
		channel = channels.DefaultChannel
	}
	k.manager.Set(ctx, channel, key, value)
	return nil
}

// State returns the recorded value of every published channel variable
func (k *Kernel) State(ctx context.Context) (map[string]any, error) {
	live, err := k.manager.Live()
	if err != nil {
		return map[string]any{}, nil
	}
	return live.Snapshot(ctx)
}
