// Package websocket carries kernel messages to and from browsers. A Hub
// tracks connected clients, encodes frames with a pluggable Codec and
// dispatches inbound messages to handlers registered per message type.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message types emitted by the transport itself
const (
	TypeError = "error"
)

var (
	// ErrHubClosed is returned when sending through a hub that has shut down
	ErrHubClosed = errors.New("hub closed")

	// ErrNoHandler is returned for inbound messages of an unregistered type
	ErrNoHandler = errors.New("no handler for message type")

	// ErrHandlerPanic is returned when a message handler panics
	ErrHandlerPanic = errors.New("message handler panicked")
)

// MessageHandler handles one inbound message from client
type MessageHandler func(ctx context.Context, client *Client, message *Message) error

// ClientHook observes clients joining or leaving the hub
type ClientHook func(client *Client)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex

	hooksMu      sync.RWMutex
	onConnect    []ClientHook
	onDisconnect []ClientHook

	authHandler AuthHandler
	codec       Codec
	logger      *zap.Logger

	staleAfter time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithCodec sets the frame codec. JSON is the default.
func WithCodec(codec Codec) HubOption {
	return func(h *Hub) {
		if codec != nil {
			h.codec = codec
		}
	}
}

// WithLogger sets the hub logger
func WithLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAuth requires every connection to present a token accepted by handler
func WithAuth(handler AuthHandler) HubOption {
	return func(h *Hub) {
		h.authHandler = handler
	}
}

// WithStaleAfter sets how long a silent client may stay registered
func WithStaleAfter(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.staleAfter = d
		}
	}
}

// NewHub creates a new Hub instance
func NewHub(ctx context.Context, opts ...HubOption) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)

	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan []byte, 1024),
		handlers:   make(map[string]MessageHandler),
		codec:      JSONCodec{},
		logger:     zap.NewNop(),
		staleAfter: 90 * time.Second,
		shutdown:   make(chan struct{}),
		ctx:        hubCtx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Codec returns the frame codec used by the hub
func (h *Hub) Codec() Codec {
	return h.codec
}

// RegisterHandler registers a message handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[messageType] = handler
}

// OnConnect registers a hook run after a client is registered
func (h *Hub) OnConnect(hook ClientHook) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.onConnect = append(h.onConnect, hook)
}

// OnDisconnect registers a hook run after a client is removed
func (h *Hub) OnDisconnect(hook ClientHook) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.onDisconnect = append(h.onDisconnect, hook)
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	cleanupTicker := time.NewTicker(h.staleAfter / 3)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.cleanup()
			return

		case <-h.shutdown:
			h.cleanup()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Info("client registered",
				zap.String("client_id", client.ID),
				zap.Int("clients", h.ClientCount()))
			h.runHooks(h.connectHooks(), client)

		case client := <-h.unregister:
			h.remove(client)

		case data := <-h.broadcast:
			h.broadcastToAll(data)

		case <-cleanupTicker.C:
			h.cleanupStaleConnections()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.closed.Store(true)
		close(client.send)
	}
	h.clientsMu.Unlock()

	if !ok {
		return
	}
	h.logger.Info("client unregistered",
		zap.String("client_id", client.ID),
		zap.Int("clients", h.ClientCount()))
	h.runHooks(h.disconnectHooks(), client)
}

func (h *Hub) connectHooks() []ClientHook {
	h.hooksMu.RLock()
	defer h.hooksMu.RUnlock()
	return append([]ClientHook(nil), h.onConnect...)
}

func (h *Hub) disconnectHooks() []ClientHook {
	h.hooksMu.RLock()
	defer h.hooksMu.RUnlock()
	return append([]ClientHook(nil), h.onDisconnect...)
}

func (h *Hub) runHooks(hooks []ClientHook, client *Client) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("client hook panicked",
						zap.String("client_id", client.ID),
						zap.Any("panic", r))
				}
			}()
			hook(client)
		}()
	}
}

// broadcastToAll sends an encoded frame to all connected clients
func (h *Hub) broadcastToAll(data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("skipping client: send channel full", zap.String("client_id", client.ID))
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message *Message) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}

	data, err := h.codec.Encode(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", message.Type, err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
		return fmt.Errorf("broadcast channel full, %s message dropped", message.Type)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Clients returns all connected clients
func (h *Hub) Clients() []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// HandleMessage decodes a frame from client and routes it by type. A
// handler panic is returned as an error wrapping ErrHandlerPanic.
func (h *Hub) HandleMessage(ctx context.Context, client *Client, data []byte) (err error) {
	message, err := h.codec.Decode(data)
	if err != nil {
		return err
	}

	h.handlersMu.RLock()
	handler, ok := h.handlers[message.Type]
	h.handlersMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, message.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("message handler panicked",
				zap.String("type", message.Type),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %s", ErrHandlerPanic, message.Type)
		}
	}()
	return handler(ctx, client, message)
}

// cleanup closes all client connections
func (h *Hub) cleanup() {
	h.logger.Info("hub shutting down", zap.Int("clients", h.ClientCount()))

	h.clientsMu.Lock()
	for client := range h.clients {
		client.closed.Store(true)
		client.cancel()
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
	h.clientsMu.Unlock()
}

// cleanupStaleConnections removes clients that have been silent too long
func (h *Hub) cleanupStaleConnections() {
	h.clientsMu.RLock()
	stale := make([]*Client, 0)
	for client := range h.clients {
		if time.Since(client.LastHeartbeat()) > h.staleAfter {
			stale = append(stale, client)
		}
	}
	h.clientsMu.RUnlock()

	for _, client := range stale {
		h.logger.Info("removing stale client", zap.String("client_id", client.ID))
		client.cancel()
		h.remove(client)
	}
}

// Shutdown stops the event loop and disconnects every client
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		close(h.shutdown)
	})
	h.wg.Wait()
}
