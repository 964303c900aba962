package channels

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/serialize"
	"github.com/declwidgets/declwidgets/internal/store"
)

// ErrNotConnected is returned when an operation needs a live registry
var ErrNotConnected = errors.New("channels: no front end connected")

type config struct {
	serializer *serialize.Serializer
	store      store.Store
	limit      int
	logger     *zap.Logger
}

// Option configures a Manager
type Option func(*config)

// WithSerializer sets the serializer used to publish values
func WithSerializer(s *serialize.Serializer) Option {
	return func(c *config) { c.serializer = s }
}

// WithStore records every published value in s
func WithStore(s store.Store) Option {
	return func(c *config) { c.store = s }
}

// WithLimit sets the default row/item cap applied when serializing values
func WithLimit(limit int) Option {
	return func(c *config) { c.limit = limit }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Manager routes Set and Watch to the pre-connection buffer or to the live
// registry, and owns the transition between the two.
type Manager struct {
	mu     sync.Mutex
	buffer *Buffer
	live   *Registry
	cfg    config
}

// NewManager creates a manager with an empty buffer and no live registry
func NewManager(opts ...Option) *Manager {
	cfg := config{
		serializer: serialize.Default(),
		limit:      serialize.DefaultLimit,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Manager{
		buffer: NewBuffer(),
		cfg:    cfg,
	}
}

// Set publishes value on (channel, key), or buffers it until Connect
func (m *Manager) Set(ctx context.Context, channel, key string, value any, opts ...serialize.Option) {
	m.mu.Lock()
	live := m.live
	if live == nil {
		m.buffer.Set(channel, key, value, opts...)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	live.Set(ctx, channel, key, value, opts...)
}

// Watch registers handler for (channel, key) on the live registry, or buffers
// it until Connect
func (m *Manager) Watch(channel, key string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live == nil {
		m.buffer.Watch(channel, key, handler)
		return
	}
	m.live.Watch(channel, key, handler)
}

// Connect creates the live registry bound to sender. The registry adopts the
// buffered watch handlers and publishes every buffered value once. Calling
// Connect again replaces the live registry; buffered values are not
// republished.
func (m *Manager) Connect(ctx context.Context, sender Sender) *Registry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live != nil {
		m.cfg.logger.Info("replacing live channel registry")
	}

	registry := newRegistry(sender, m.buffer.watchers, &m.cfg)
	m.live = registry

	pending := m.buffer.Drain()
	for _, p := range pending {
		registry.Set(ctx, p.Channel, p.Key, p.Value, p.Options...)
	}

	m.cfg.logger.Info("channel registry connected",
		zap.Int("flushed", len(pending)),
		zap.Int("watchers", m.buffer.watchers.len()),
	)
	return registry
}

// Live returns the live registry or ErrNotConnected
func (m *Manager) Live() (*Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live == nil {
		return nil, ErrNotConnected
	}
	return m.live, nil
}

// Connected reports whether a live registry exists
func (m *Manager) Connected() bool {
	_, err := m.Live()
	return err == nil
}

// Disconnect drops the live registry. Later Set calls are buffered again and
// watch handlers are kept.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = nil
}

// HandleMessage dispatches msg to the live registry
func (m *Manager) HandleMessage(ctx context.Context, msg Message) (Ack, error) {
	live, err := m.Live()
	if err != nil {
		return Ack{}, err
	}
	return live.HandleMessage(ctx, msg), nil
}

// Channel returns a handle for one channel; an empty name means DefaultChannel
func (m *Manager) Channel(name string) *Channel {
	if name == "" {
		name = DefaultChannel
	}
	return &Channel{name: name, manager: m}
}

// Channel is a handle for setting and watching variables on one channel
type Channel struct {
	name    string
	manager *Manager
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// Set publishes value under key on this channel
func (c *Channel) Set(ctx context.Context, key string, value any, opts ...serialize.Option) {
	c.manager.Set(ctx, c.name, key, value, opts...)
}

// Watch registers handler for key on this channel
func (c *Channel) Watch(key string, handler Handler) {
	c.manager.Watch(c.name, key, handler)
}
